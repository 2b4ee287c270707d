package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/577fkj/powermust-ups/powermust"
)

func validConfig() Config {
	cfg := defaultConfig()
	cfg.Serial.Port = "/dev/ttyUSB0"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Validate(&cfg))
	assert.Equal(t, 2400, cfg.Serial.BaudRate)
	assert.Equal(t, powermust.DefaultPollInterval, cfg.Driver.PollInterval)
	assert.Len(t, cfg.Driver.Polls, 3)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Serial.Port = "" }},
		{"zero baud", func(c *Config) { c.Serial.BaudRate = 0 }},
		{"zero interval", func(c *Config) { c.Driver.PollInterval = 0 }},
		{"zero timeout", func(c *Config) { c.Driver.Timeout = 0 }},
		{"zero tick", func(c *Config) { c.Driver.Tick = 0 }},
		{"empty poll", func(c *Config) { c.Driver.Polls = []PollConfig{{Kind: "status"}} }},
		{"bad kind", func(c *Config) { c.Driver.Polls = []PollConfig{{Command: "Q1", Kind: "bogus"}} }},
		{"too many polls", func(c *Config) {
			c.Driver.Polls = make([]PollConfig, powermust.PollTableLength+1)
			for i := range c.Driver.Polls {
				c.Driver.Polls[i] = PollConfig{Command: "Q1", Kind: "status"}
			}
		}},
		{"trap version", func(c *Config) { c.SNMP.TrapVersion = "3" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, Validate(&cfg))
		})
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial:
  port: /dev/ttyS0
  baud_rate: 4800
driver:
  poll_interval: 5s
  polls:
    - command: Q1
      kind: status
mqtt:
  broker: tcp://localhost:1883
`), 0o644))

	cfg := defaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configPath := bindFlags(fs, &cfg)
	require.NoError(t, fs.Parse([]string{"--config", path, "--baud", "9600"}))
	require.NoError(t, loadConfig(fs, *configPath, &cfg))

	assert.Equal(t, "/dev/ttyS0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 5*time.Second, cfg.Driver.PollInterval)
	assert.Equal(t, powermust.DefaultTimeout, cfg.Driver.Timeout)
	assert.Equal(t, []PollConfig{{Command: "Q1", Kind: "status"}}, cfg.Driver.Polls)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "powermust", cfg.MQTT.Prefix)
	require.NoError(t, Validate(&cfg))
}

func TestLoadConfigErrors(t *testing.T) {
	cfg := defaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs, &cfg)

	assert.NoError(t, loadConfig(fs, "", &cfg))
	assert.Error(t, loadConfig(fs, filepath.Join(t.TempDir(), "missing.yaml"), &cfg))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("serial: [\n"), 0o644))
	assert.Error(t, loadConfig(fs, bad, &cfg))
}

func TestRegisterPolls(t *testing.T) {
	d := powermust.New(nil, powermust.Options{})
	registerPolls(d, defaultConfig().Driver.Polls)

	entries := d.PollEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "Q1", entries[0].Command)
	assert.Equal(t, powermust.PollStatus, entries[0].Kind)
	assert.Equal(t, powermust.PollRatings, entries[1].Kind)
	assert.Equal(t, powermust.PollInfo, entries[2].Kind)
}
