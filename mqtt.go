package main

import (
	"math"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/577fkj/powermust-ups/powermust"
)

const mqttConnectTimeout = 5 * time.Second

// mqttPublisher mirrors every value to a retained topic under the prefix
// and accepts commands on <prefix>/command and <prefix>/switch/<name>/set.
type mqttPublisher struct {
	client   mqtt.Client
	prefix   string
	commands chan<- string
}

func newMQTTPublisher(cfg MQTTConfig, commands chan<- string) (*mqttPublisher, error) {
	m := &mqttPublisher{
		prefix:   strings.TrimSuffix(cfg.Prefix, "/"),
		commands: commands,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWill(m.topic("status"), "offline", 0, true)
	opts.OnConnect = m.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		Logger.Warnf("MQTT connection lost: %v", err)
	}

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	if token.WaitTimeout(mqttConnectTimeout) && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connect %s", cfg.Broker)
	}
	return m, nil
}

// Subscriptions are made on every (re)connect.
func (m *mqttPublisher) onConnect(client mqtt.Client) {
	Logger.Info("Connected to MQTT broker")
	client.Publish(m.topic("status"), 0, true, "online")

	filters := map[string]byte{
		m.topic("command"):            0,
		m.topic("switch", "+", "set"): 0,
	}
	token := client.SubscribeMultiple(filters, m.onMessage)
	if token.WaitTimeout(mqttConnectTimeout) && token.Error() != nil {
		Logger.Errorf("MQTT subscribe: %v", token.Error())
	}
}

func (m *mqttPublisher) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd, ok := m.parseCommand(msg.Topic(), string(msg.Payload()))
	if !ok {
		Logger.Warnf("MQTT: ignoring %q on %s", msg.Payload(), msg.Topic())
		return
	}
	select {
	case m.commands <- cmd:
	default:
		Logger.Warnf("command channel full, dropping: %s", cmd)
	}
}

// parseCommand maps an inbound message to a wire command.
func (m *mqttPublisher) parseCommand(topic, payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	if topic == m.topic("command") {
		return payload, payload != ""
	}

	name := strings.TrimPrefix(topic, m.topic("switch")+"/")
	if name == topic || !strings.HasSuffix(name, "/set") {
		return "", false
	}
	name = strings.TrimSuffix(name, "/set")
	on, ok := parseSwitchPayload(payload)
	if !ok {
		return "", false
	}
	return powermust.SwitchCommand(powermust.Switch(name), on)
}

func (m *mqttPublisher) topic(parts ...string) string {
	return m.prefix + "/" + strings.Join(parts, "/")
}

func (m *mqttPublisher) publish(topic, payload string) {
	token := m.client.Publish(topic, 0, true, payload)
	go func() {
		if token.WaitTimeout(mqttConnectTimeout) && token.Error() != nil {
			Logger.Errorf("MQTT publish %s: %v", topic, token.Error())
		}
	}()
}

func (m *mqttPublisher) PublishNumber(field powermust.Field, v float64) {
	m.publish(m.topic(string(field)), formatNumber(v))
}

func (m *mqttPublisher) PublishBinary(field powermust.Field, v bool) {
	m.publish(m.topic(string(field)), formatSwitch(v))
}

func (m *mqttPublisher) PublishText(field powermust.Field, v string) {
	m.publish(m.topic(string(field)), v)
}

func (m *mqttPublisher) PublishSwitch(sw powermust.Switch, on bool) {
	m.publish(m.topic("switch", string(sw)), formatSwitch(on))
}

func (m *mqttPublisher) Close() {
	m.client.Publish(m.topic("status"), 0, true, "offline").WaitTimeout(time.Second)
	m.client.Disconnect(250)
}

func formatNumber(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSwitch(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func parseSwitchPayload(s string) (on, ok bool) {
	switch strings.ToUpper(s) {
	case "ON", "1", "TRUE":
		return true, true
	case "OFF", "0", "FALSE":
		return false, true
	}
	return false, false
}
