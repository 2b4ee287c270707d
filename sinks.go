package main

import (
	"github.com/sirupsen/logrus"

	"github.com/577fkj/powermust-ups/powermust"
)

// multiPublisher forwards every value to each sink in order.
type multiPublisher []powermust.Publisher

func (m multiPublisher) PublishNumber(field powermust.Field, v float64) {
	for _, p := range m {
		p.PublishNumber(field, v)
	}
}

func (m multiPublisher) PublishBinary(field powermust.Field, v bool) {
	for _, p := range m {
		p.PublishBinary(field, v)
	}
}

func (m multiPublisher) PublishText(field powermust.Field, v string) {
	for _, p := range m {
		p.PublishText(field, v)
	}
}

func (m multiPublisher) PublishSwitch(sw powermust.Switch, on bool) {
	for _, p := range m {
		p.PublishSwitch(sw, on)
	}
}

// logPublisher writes every value at debug level.
type logPublisher struct {
	log logrus.FieldLogger
}

func (l logPublisher) PublishNumber(field powermust.Field, v float64) {
	l.log.WithField("field", field).Debugf("number: %v", v)
}

func (l logPublisher) PublishBinary(field powermust.Field, v bool) {
	l.log.WithField("field", field).Debugf("binary: %t", v)
}

func (l logPublisher) PublishText(field powermust.Field, v string) {
	l.log.WithField("field", field).Debugf("text: %q", v)
}

func (l logPublisher) PublishSwitch(sw powermust.Switch, on bool) {
	l.log.WithField("switch", sw).Debugf("switch: %t", on)
}
