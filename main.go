package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/slayercat/GoSNMPServer"
	"github.com/spf13/pflag"

	"github.com/577fkj/powermust-ups/powermust"
)

const version = "1.0.0"

// 命令通道容量
const commandBacklog = 16

var Logger *logrus.Logger
var SNMPLogger *logrus.Logger

func main() {
	cfg := defaultConfig()
	fs := pflag.NewFlagSet(filepath.Base(os.Args[0]), pflag.ExitOnError)
	path := bindFlags(fs, &cfg)
	fs.Parse(os.Args[1:])

	if err := loadConfig(fs, *path, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		panic("Log level error: " + err.Error())
	}
	Logger = newLog(cfg.Log.Dir, "app")
	SNMPLogger = newLog(cfg.Log.Dir, "snmp")
	Logger.SetLevel(lvl)
	SNMPLogger.SetLevel(lvl)

	if cfg.Serial.Port == "" {
		fs.Usage()
		printPorts()
		os.Exit(1)
	}
	if err := Validate(&cfg); err != nil {
		Logger.Fatalf("Invalid config: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		Logger.Fatal(err)
	}
	Logger.Info("Stopped")
}

func run(ctx context.Context, cfg Config) error {
	tty, err := serialInit(cfg.Serial)
	if err != nil {
		return fmt.Errorf("init serial failed: %w", err)
	}
	defer tty.Close()

	commands := make(chan string, commandBacklog)
	data := newSNMPData()
	alarm := newAlarm(data)
	device := newUPSDevice(data, alarm, commands, cfg.DisableBuzz)
	m := newMetrics()

	publishers := multiPublisher{device, m, logPublisher{log: Logger.WithField("component", "publish")}}

	if cfg.SNMP.Enabled {
		snmp, err := startSNMP(cfg.SNMP, device, data)
		if err != nil {
			return err
		}
		defer snmp.Close()
		if err := alarm.SetSNMP(snmp); err != nil {
			return fmt.Errorf("register alarm table: %w", err)
		}
		go func() {
			if err := snmp.Run(); err != nil {
				SNMPLogger.Errorf("SNMP server stopped: %s", err)
			}
		}()
	}

	if cfg.MQTT.Broker != "" {
		mq, err := newMQTTPublisher(cfg.MQTT, commands)
		if err != nil {
			return err
		}
		defer mq.Close()
		publishers = append(publishers, mq)
	}

	if cfg.HTTP.Listen != "" {
		hub := newWebHub(commands)
		publishers = append(publishers, hub)
		go hub.run(ctx)

		srv := &http.Server{Addr: cfg.HTTP.Listen, Handler: newRouter(hub, m.registry)}
		go func() {
			Logger.Infof("HTTP server is running on %s", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("HTTP server stopped: %s", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	driver := powermust.New(tty, powermust.Options{
		PollInterval: cfg.Driver.PollInterval,
		Timeout:      cfg.Driver.Timeout,
		Publisher:    publishers,
		Reporter:     m,
		Logger:       Logger.WithField("component", "driver"),
	})
	registerPolls(driver, cfg.Driver.Polls)
	driver.DumpConfig()

	schedule(ctx, driver, cfg.Driver.Tick, commands, m)
	return nil
}

func startSNMP(cfg SNMPSettings, device *upsDevice, data *SNMPData) (*SNMP, error) {
	var auth *SNMPAuth
	if cfg.Username != "" && cfg.AuthPass != "" && cfg.PrivPass != "" {
		auth = &SNMPAuth{
			Username:  cfg.Username,
			AuthKey:   cfg.AuthPass,
			PrivKey:   cfg.PrivPass,
			AuthProto: getAuthProto(cfg.AuthProto),
			PrivProto: getPrivProto(cfg.PrivProto),
		}
	}

	snmp, err := snmpServer(SNMPConfig{
		Address:     cfg.Address,
		Port:        cfg.Port,
		MibDir:      cfg.MibDir,
		PublicName:  cfg.PublicName,
		PrivateName: cfg.PrivateName,
		Auth:        auth,
		SetCallback: device.onSNMPSet,
		Logger:      GoSNMPServer.WrapLogrus(SNMPLogger),
	}, enabledServices(), data)
	if err != nil {
		return nil, fmt.Errorf("init snmp failed: %w", err)
	}
	if err := device.registerTables(snmp); err != nil {
		snmp.Close()
		return nil, err
	}

	if cfg.TrapTarget != "" {
		trap, err := newTrapSender(cfg.TrapTarget, cfg.PublicName, cfg.TrapVersion)
		if err != nil {
			snmp.Close()
			return nil, err
		}
		snmp.Trap = trap
	}
	return snmp, nil
}

// schedule owns the driver: it ticks the state machine and feeds it the
// commands received from SNMP, MQTT and HTTP until ctx is done.
func schedule(ctx context.Context, d *powermust.Driver, tick time.Duration, commands <-chan string, m *metrics) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			Logger.Info("Received signal. Stopping...")
			return
		case cmd := <-commands:
			d.QueueCommand(cmd)
		case <-ticker.C:
			d.Loop()
			if m != nil {
				m.observePolls(d.PollEntries())
			}
		}
	}
}

func init() {
	Logger = logrus.New()
	SNMPLogger = logrus.New()
}

func newLog(dir, name string) *logrus.Logger {
	// 创建一个 writer
	logWriter, err := rotatelogs.New(
		filepath.Join(dir, name+"Log_%Y-%m-%d.log"), //日志路径
		rotatelogs.WithLinkName(filepath.Join(dir, name+"Log.log")),
		rotatelogs.WithRotationTime(24*time.Hour), // 每 24 小时轮转一次
		rotatelogs.WithRotationSize(10*1024*1024), // 当日志文件超过 10MB 时轮转
	)
	if err != nil {
		panic(err)
	}

	// 创建一个 Error 级别的 writer
	errorWriter, err := rotatelogs.New(
		filepath.Join(dir, name+"Error_%Y-%m-%d.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, name+"Error.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithRotationSize(10*1024*1024),
	)
	if err != nil {
		panic(err)
	}

	// 新建Hook，按日志级别匹配 writer
	hook := lfshook.NewHook(
		lfshook.WriterMap{
			logrus.DebugLevel: logWriter,
			logrus.InfoLevel:  logWriter,
			logrus.WarnLevel:  logWriter,
			logrus.TraceLevel: logWriter,

			logrus.ErrorLevel: errorWriter,
			logrus.FatalLevel: errorWriter,
			logrus.PanicLevel: errorWriter,
		},
		&logrus.TextFormatter{
			FullTimestamp: true,
		},
	)

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
	logger.AddHook(hook)
	return logger
}
