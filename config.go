package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/577fkj/powermust-ups/powermust"
)

type Config struct {
	Serial      SerialConfig `yaml:"serial"`
	Driver      DriverConfig `yaml:"driver"`
	SNMP        SNMPSettings `yaml:"snmp"`
	MQTT        MQTTConfig   `yaml:"mqtt"`
	HTTP        HTTPConfig   `yaml:"http"`
	Log         LogConfig    `yaml:"log"`
	DisableBuzz bool         `yaml:"disable_buzz"`
}

type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

type DriverConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	Tick         time.Duration `yaml:"tick"`
	Polls        []PollConfig  `yaml:"polls"`
}

type PollConfig struct {
	Command string `yaml:"command"`
	Kind    string `yaml:"kind"`
}

type SNMPSettings struct {
	Enabled     bool   `yaml:"enabled"`
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"`
	PublicName  string `yaml:"public"`
	PrivateName string `yaml:"private"`
	Username    string `yaml:"username"`
	AuthPass    string `yaml:"auth_pass"`
	PrivPass    string `yaml:"priv_pass"`
	AuthProto   string `yaml:"auth_proto"`
	PrivProto   string `yaml:"priv_proto"`
	MibDir      string `yaml:"mib_dir"`
	TrapTarget  string `yaml:"trap_target"`
	TrapVersion string `yaml:"trap_version"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Prefix   string `yaml:"prefix"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

func defaultConfig() Config {
	return Config{
		Serial: SerialConfig{BaudRate: 2400},
		Driver: DriverConfig{
			PollInterval: powermust.DefaultPollInterval,
			Timeout:      powermust.DefaultTimeout,
			Tick:         20 * time.Millisecond,
			Polls: []PollConfig{
				{Command: powermust.CmdStatus, Kind: "status"},
				{Command: powermust.CmdRatings, Kind: "ratings"},
				{Command: powermust.CmdInfo, Kind: "info"},
			},
		},
		SNMP: SNMPSettings{
			Enabled:     true,
			Address:     "0.0.0.0",
			Port:        161,
			PublicName:  "public",
			PrivateName: "private",
			Username:    "admin",
			AuthPass:    "admin",
			PrivPass:    "admin",
			AuthProto:   "MD5",
			PrivProto:   "DES",
			MibDir:      "mibs",
			TrapVersion: "2c",
		},
		MQTT: MQTTConfig{
			ClientID: "powermust-ups",
			Prefix:   "powermust",
		},
		Log: LogConfig{Level: "info", Dir: "logs"},
	}
}

// bindFlags registers every command line option on fs, writing into cfg.
func bindFlags(fs *pflag.FlagSet, cfg *Config) *string {
	path := fs.String("config", "", "YAML 配置文件 (可选)")

	fs.StringVarP(&cfg.Serial.Port, "com", "c", cfg.Serial.Port, "串口设备 [COM8, /dev/ttyUSB0]")
	fs.IntVar(&cfg.Serial.BaudRate, "baud", cfg.Serial.BaudRate, "串口波特率 (可选)")

	fs.DurationVar(&cfg.Driver.PollInterval, "poll-interval", cfg.Driver.PollInterval, "轮询间隔 (可选)")
	fs.DurationVar(&cfg.Driver.Timeout, "timeout", cfg.Driver.Timeout, "单次交换超时 (可选)")
	fs.DurationVar(&cfg.Driver.Tick, "tick", cfg.Driver.Tick, "调度周期 (可选)")

	fs.BoolVar(&cfg.SNMP.Enabled, "snmp", cfg.SNMP.Enabled, "启用 SNMP 代理 (可选)")
	fs.StringVarP(&cfg.SNMP.Address, "address", "a", cfg.SNMP.Address, "监听地址 (可选)")
	fs.IntVarP(&cfg.SNMP.Port, "port", "p", cfg.SNMP.Port, "监听端口 (可选)")
	fs.StringVarP(&cfg.SNMP.PublicName, "public", "P", cfg.SNMP.PublicName, "SNMPv1/v2c 公共名 (可选)")
	fs.StringVarP(&cfg.SNMP.PrivateName, "private", "R", cfg.SNMP.PrivateName, "SNMPv1/v2c 私有名 (可选)")
	fs.StringVarP(&cfg.SNMP.Username, "username", "u", cfg.SNMP.Username, "SNMPv3 用户名 (可选)")
	fs.StringVarP(&cfg.SNMP.AuthPass, "authpass", "A", cfg.SNMP.AuthPass, "SNMPv3 认证密码 (可选)")
	fs.StringVarP(&cfg.SNMP.PrivPass, "privpass", "V", cfg.SNMP.PrivPass, "SNMPv3 加密密码 (可选)")
	fs.StringVarP(&cfg.SNMP.AuthProto, "authproto", "t", cfg.SNMP.AuthProto, "SNMPv3 认证协议 [MD5, SHA, SHA224, SHA256, SHA384, SHA512] (可选)")
	fs.StringVarP(&cfg.SNMP.PrivProto, "privproto", "i", cfg.SNMP.PrivProto, "SNMPv3 加密协议 [DES, AES, AES192, AES192C, AES256, AES256C] (可选)")
	fs.StringVar(&cfg.SNMP.MibDir, "mibs", cfg.SNMP.MibDir, "MIB 目录 (可选)")
	fs.StringVar(&cfg.SNMP.TrapTarget, "trap", cfg.SNMP.TrapTarget, "Trap 接收地址 host:port (可选)")
	fs.StringVar(&cfg.SNMP.TrapVersion, "trap-version", cfg.SNMP.TrapVersion, "Trap 版本 [1, 2c] (可选)")

	fs.StringVar(&cfg.MQTT.Broker, "mqtt", cfg.MQTT.Broker, "MQTT 服务器 tcp://host:1883 (可选)")
	fs.StringVar(&cfg.MQTT.Prefix, "mqtt-prefix", cfg.MQTT.Prefix, "MQTT 主题前缀 (可选)")
	fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client", cfg.MQTT.ClientID, "MQTT 客户端 ID (可选)")

	fs.StringVar(&cfg.HTTP.Listen, "http", cfg.HTTP.Listen, "HTTP 监听地址, 提供 /ws /command /metrics (可选)")

	fs.BoolVarP(&cfg.DisableBuzz, "disable-buzz", "b", cfg.DisableBuzz, "禁用蜂鸣器 (可选)")

	fs.StringVarP(&cfg.Log.Level, "log", "l", cfg.Log.Level, "日志级别 [trace, debug, info, warn, error, fatal] (可选)")
	fs.StringVar(&cfg.Log.Dir, "log-dir", cfg.Log.Dir, "日志目录 (可选)")
	return path
}

// loadConfig reads the YAML file at path into cfg. Flags given explicitly
// on the command line keep precedence over the file.
func loadConfig(fs *pflag.FlagSet, path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	overrides := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		overrides[f.Name] = f.Value.String()
	})

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	for name, value := range overrides {
		if err := fs.Set(name, value); err != nil {
			return errors.Wrapf(err, "flag --%s", name)
		}
	}
	return nil
}

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg.Serial.Port == "" {
		return fmt.Errorf("serial port is required")
	}
	if cfg.Serial.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be > 0")
	}
	if cfg.Driver.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	if cfg.Driver.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if cfg.Driver.Tick <= 0 {
		return fmt.Errorf("tick must be > 0")
	}
	if len(cfg.Driver.Polls) > powermust.PollTableLength {
		return fmt.Errorf("at most %d polling commands, got %d", powermust.PollTableLength, len(cfg.Driver.Polls))
	}
	for i, p := range cfg.Driver.Polls {
		if p.Command == "" {
			return fmt.Errorf("poll %d: command is required", i)
		}
		if _, err := powermust.ParsePollKind(p.Kind); err != nil {
			return fmt.Errorf("poll %q: %w", p.Command, err)
		}
	}
	switch cfg.SNMP.TrapVersion {
	case "1", "2c":
	default:
		return fmt.Errorf("trap version must be 1 or 2c, got %q", cfg.SNMP.TrapVersion)
	}
	return nil
}

// registerPolls adds the configured polls to the driver. Validate must
// have accepted cfg.
func registerPolls(d *powermust.Driver, polls []PollConfig) {
	for _, p := range polls {
		kind, _ := powermust.ParsePollKind(p.Kind)
		d.AddPollingCommand(p.Command, kind)
	}
}
