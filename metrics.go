package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/577fkj/powermust-ups/powermust"
)

// metrics exports published values and exchange outcomes to Prometheus.
type metrics struct {
	registry *prometheus.Registry

	values     *prometheus.GaugeVec
	flags      *prometheus.GaugeVec
	switches   *prometheus.GaugeVec
	exchanges  *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	pollErrors *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ups_value",
			Help: "Last numeric value decoded from the UPS",
		}, []string{"field"}),
		flags: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ups_flag",
			Help: "Last status bit reported by the UPS (1 = set)",
		}, []string{"field"}),
		switches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ups_switch",
			Help: "Current switch state (1 = on)",
		}, []string{"switch"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ups_exchanges_total",
			Help: "Serial exchanges by kind, command and result",
		}, []string{"kind", "command", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ups_exchange_seconds",
			Help:    "Time from request to completed exchange",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"kind"}),
		pollErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ups_poll_errors",
			Help: "Failed exchanges per polling command since start",
		}, []string{"command"}),
	}
	m.registry.MustRegister(m.values, m.flags, m.switches, m.exchanges, m.latency, m.pollErrors)
	return m
}

func (m *metrics) PublishNumber(field powermust.Field, v float64) {
	m.values.WithLabelValues(string(field)).Set(v)
}

func (m *metrics) PublishBinary(field powermust.Field, v bool) {
	m.flags.WithLabelValues(string(field)).Set(boolGauge(v))
}

func (m *metrics) PublishText(powermust.Field, string) {}

func (m *metrics) PublishSwitch(sw powermust.Switch, on bool) {
	m.switches.WithLabelValues(string(sw)).Set(boolGauge(on))
}

// Report implements powermust.Reporter.
func (m *metrics) Report(r powermust.Result) {
	kind := r.Kind.String()
	m.exchanges.WithLabelValues(kind, commandLabel(r), resultLabel(r.Err)).Inc()
	if r.Elapsed > 0 {
		m.latency.WithLabelValues(kind).Observe(r.Elapsed.Seconds())
	}
}

func (m *metrics) observePolls(entries []powermust.PollEntry) {
	for _, e := range entries {
		m.pollErrors.WithLabelValues(e.Command).Set(float64(e.Errors))
	}
}

// knownCommands are the wire commands reported under their own label.
var knownCommands = map[string]bool{
	powermust.CmdStatus:         true,
	powermust.CmdRatings:        true,
	powermust.CmdInfo:           true,
	powermust.CmdTest:           true,
	powermust.CmdTestUntilLow:   true,
	powermust.CmdToggleBeeper:   true,
	powermust.CmdCancelShutdown: true,
	powermust.CmdCancelTest:     true,
	powermust.CmdCancelLowTest:  true,
}

// commandLabel keeps the command label bounded. Polls come from the
// configured table; free-form commands are bucketed by family.
func commandLabel(r powermust.Result) string {
	cmd := r.Command
	switch {
	case r.Kind == powermust.PollExchange, knownCommands[cmd]:
		return cmd
	case strings.HasPrefix(cmd, "S") && powermust.ExpectsAck(cmd):
		return "S"
	case len(cmd) == 3 && cmd[0] == 'T' && isDigits(cmd[1:]):
		return "Tnn"
	}
	return "other"
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, powermust.ErrNakReceived):
		return "nak"
	case errors.Is(err, powermust.ErrNoResponse):
		return "no_response"
	case errors.Is(err, powermust.ErrTimeout):
		return "timeout"
	case errors.Is(err, powermust.ErrDecodeShortfall):
		return "decode"
	case errors.Is(err, powermust.ErrUnexpectedResponse):
		return "unexpected"
	}
	return "error"
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
