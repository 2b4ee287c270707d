package powermust

import "time"

// Field is the logical name of a published value.
type Field string

const (
	GridVoltage         Field = "grid_voltage"
	GridFaultVoltage    Field = "grid_fault_voltage"
	ACOutputVoltage     Field = "ac_output_voltage"
	ACOutputLoadPercent Field = "ac_output_load_percent"
	GridFrequency       Field = "grid_frequency"
	BatteryVoltage      Field = "battery_voltage"
	Temperature         Field = "temperature"

	UtilityFail    Field = "utility_fail"
	BatteryLow     Field = "battery_low"
	BypassActive   Field = "bypass_active"
	UPSFailed      Field = "ups_failed"
	UPSTypeStandby Field = "ups_type_standby"
	TestInProgress Field = "test_in_progress"
	ShutdownActive Field = "shutdown_active"
	BeeperOn       Field = "beeper_on"

	ACOutputRatingVoltage   Field = "ac_output_rating_voltage"
	ACOutputRatingCurrent   Field = "ac_output_rating_current"
	BatteryRatingVoltage    Field = "battery_rating_voltage"
	ACOutputRatingFrequency Field = "ac_output_rating_frequency"

	LastQ1  Field = "last_q1"
	LastF   Field = "last_f"
	UPSInfo Field = "ups_info"
)

// Switch names a momentary output driven by commands.
type Switch string

const (
	BeeperSwitch          Switch = "beeper"
	QuickTestSwitch       Switch = "quick_test"
	DeepTestSwitch        Switch = "deep_test"
	TenMinutesTestSwitch  Switch = "ten_minutes_test"
	ShutdownSwitch        Switch = "shutdown"
	ShutdownRestoreSwitch Switch = "shutdown_restore"
	CancelShutdownSwitch  Switch = "cancel_shutdown"
)

// Publisher receives decoded values and switch states. Calls are made from
// the goroutine driving Loop.
type Publisher interface {
	PublishNumber(field Field, value float64)
	PublishBinary(field Field, value bool)
	PublishText(field Field, value string)
	PublishSwitch(sw Switch, on bool)
}

// ExchangeKind tells a command exchange from a poll exchange.
type ExchangeKind int

const (
	CommandExchange ExchangeKind = iota
	PollExchange
)

func (k ExchangeKind) String() string {
	if k == PollExchange {
		return "poll"
	}
	return "command"
}

// Result describes one finished exchange. Err is nil on success.
type Result struct {
	Kind    ExchangeKind
	Command string
	Err     error
	Elapsed time.Duration
}

// Reporter is notified once per finished exchange.
type Reporter interface {
	Report(r Result)
}

type nopPublisher struct{}

func (nopPublisher) PublishNumber(Field, float64) {}
func (nopPublisher) PublishBinary(Field, bool)    {}
func (nopPublisher) PublishText(Field, string)    {}
func (nopPublisher) PublishSwitch(Switch, bool)   {}
