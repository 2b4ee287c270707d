package main

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/577fkj/powermust-ups/powermust"
)

func TestMetricsPublish(t *testing.T) {
	m := newMetrics()
	m.PublishNumber(powermust.GridVoltage, 229.5)
	m.PublishBinary(powermust.UtilityFail, true)
	m.PublishSwitch(powermust.QuickTestSwitch, false)

	assert.Equal(t, 229.5, testutil.ToFloat64(m.values.WithLabelValues("grid_voltage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flags.WithLabelValues("utility_fail")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.switches.WithLabelValues("quick_test")))
}

func TestMetricsReport(t *testing.T) {
	m := newMetrics()
	m.Report(powermust.Result{Kind: powermust.PollExchange, Command: "Q1", Elapsed: 80 * time.Millisecond})
	m.Report(powermust.Result{Kind: powermust.CommandExchange, Command: "T", Err: powermust.ErrNakReceived})
	m.Report(powermust.Result{Kind: powermust.PollExchange, Command: "Q1", Err: powermust.ErrTimeout})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("poll", "Q1", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("command", "T", "nak")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("poll", "Q1", "timeout")))

	expected := `
# HELP ups_poll_errors Failed exchanges per polling command since start
# TYPE ups_poll_errors gauge
ups_poll_errors{command="F"} 0
ups_poll_errors{command="Q1"} 2
`
	m.observePolls([]powermust.PollEntry{
		{Command: "Q1", Kind: powermust.PollStatus, Errors: 2},
		{Command: "F", Kind: powermust.PollRatings},
	})
	assert.NoError(t, testutil.GatherAndCompare(m.registry, strings.NewReader(expected), "ups_poll_errors"))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "no_response", resultLabel(powermust.ErrNoResponse))
	assert.Equal(t, "decode", resultLabel(errors.Wrap(powermust.ErrDecodeShortfall, "Q1")))
	assert.Equal(t, "unexpected", resultLabel(powermust.ErrUnexpectedResponse))
	assert.Equal(t, "error", resultLabel(errors.New("boom")))
}

func TestMetricsCommandLabelIsBounded(t *testing.T) {
	m := newMetrics()
	for _, cmd := range []string{"T", "S.5", "S02R0003", "T05", "hello", "Q1 extra", "Txy"} {
		m.Report(powermust.Result{Kind: powermust.CommandExchange, Command: cmd})
	}
	m.Report(powermust.Result{Kind: powermust.PollExchange, Command: "Q1"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("command", "T", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.exchanges.WithLabelValues("command", "S", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("command", "Tnn", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.exchanges.WithLabelValues("command", "other", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("poll", "Q1", "ok")))
	assert.Equal(t, 5, testutil.CollectAndCount(m.exchanges))
}
