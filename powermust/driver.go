// Package powermust drives a Megatec-protocol UPS over a half-duplex serial
// link. The Driver is advanced by repeated calls to Loop from a single
// goroutine and never blocks on the transport.
package powermust

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is the position of the driver in the current exchange.
type State int

const (
	StateIdle State = iota
	StateCommand
	StateCommandComplete
	StatePoll
	StatePollComplete
	StatePollChecked
	StatePollDecoded
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateCommand:         "command",
	StateCommandComplete: "command_complete",
	StatePoll:            "poll",
	StatePollComplete:    "poll_complete",
	StatePollChecked:     "poll_checked",
	StatePollDecoded:     "poll_decoded",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const (
	DefaultPollInterval = 10 * time.Second
	DefaultTimeout      = 2 * time.Second

	// Upper bound of transitions chained inside one Loop call.
	maxStepsPerLoop = 8
)

// Options configures a Driver. Zero values select defaults.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration

	Publisher Publisher
	Reporter  Reporter
	Logger    logrus.FieldLogger

	// Now is the clock used for poll scheduling and timeouts.
	Now func() time.Time

	// OnTransition, when set, sees every state change.
	OnTransition func(from, to State)
}

// Readings holds the last successfully decoded value of each poll kind.
type Readings struct {
	Status     StatusLine
	HasStatus  bool
	Ratings    RatingsLine
	HasRatings bool
	Info       string
	HasInfo    bool
}

// Driver owns the serial exchange: one request on the wire at a time.
type Driver struct {
	transport Transport
	publisher Publisher
	reporter  Reporter
	log       logrus.FieldLogger
	now       func() time.Time
	observe   func(from, to State)

	pollInterval time.Duration
	timeout      time.Duration

	state    State
	queue    CommandQueue
	polls    PollTable
	frame    FrameReader
	started  time.Time
	lastPoll time.Time
	polled   bool

	decodeErr error
	readings  Readings
}

// New returns an idle driver writing to and reading from t.
func New(t Transport, opts Options) *Driver {
	d := &Driver{
		transport:    t,
		publisher:    opts.Publisher,
		reporter:     opts.Reporter,
		log:          opts.Logger,
		now:          opts.Now,
		observe:      opts.OnTransition,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
	}
	if d.publisher == nil {
		d.publisher = nopPublisher{}
	}
	if d.log == nil {
		d.log = logrus.StandardLogger()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	return d
}

// AddPollingCommand registers a status poll. Duplicates are ignored.
func (d *Driver) AddPollingCommand(command string, kind PollKind) {
	d.polls.Register(command, kind)
}

// QueueCommand schedules a command for the next idle tick. When the queue
// is full the command is dropped and only a warning is logged.
func (d *Driver) QueueCommand(command string) {
	d.log.Debugf("got command: %s", command)
	pos, err := d.queue.Enqueue(command)
	if err != nil {
		d.log.Warnf("Command queue full, dropping: %s", command)
		return
	}
	if pos >= 0 {
		d.log.Debugf("Command queued: %s at pos %d", command, pos)
	}
}

// State returns the current exchange state.
func (d *Driver) State() State {
	return d.state
}

// Pending returns the number of queued commands, the in-flight one included.
func (d *Driver) Pending() int {
	return d.queue.Len()
}

// PollEntries returns the registered polls with their error counters.
func (d *Driver) PollEntries() []PollEntry {
	return d.polls.Entries()
}

// Readings returns the last decoded values.
func (d *Driver) Readings() Readings {
	return d.readings
}

// DumpConfig logs the driver settings and registered polls.
func (d *Driver) DumpConfig() {
	d.log.Infof("Powermust: poll interval %s, timeout %s", d.pollInterval, d.timeout)
	d.log.Info("  Used polling commands:")
	for _, e := range d.polls.Entries() {
		d.log.Infof("    %s (%s)", e.Command, e.Kind)
	}
}

// Loop advances the state machine. It returns as soon as it would have to
// wait for the transport or the clock.
func (d *Driver) Loop() {
	for i := 0; i < maxStepsPerLoop; i++ {
		next, wait := d.step()
		d.setState(next)
		if wait {
			return
		}
	}
}

func (d *Driver) step() (State, bool) {
	switch d.state {
	case StateIdle:
		return d.idle()
	case StateCommand:
		return d.awaitCommand()
	case StateCommandComplete:
		return d.completeCommand()
	case StatePoll:
		return d.awaitPoll()
	case StatePollComplete:
		return d.checkPoll()
	case StatePollChecked:
		return d.decodePoll()
	case StatePollDecoded:
		return d.publishPoll()
	}
	return StateIdle, true
}

func (d *Driver) setState(s State) {
	if s == d.state {
		return
	}
	if d.observe != nil {
		d.observe(d.state, s)
	}
	d.state = s
}

func (d *Driver) idle() (State, bool) {
	if cmd, ok := d.queue.Next(); ok {
		d.send(cmd)
		d.log.Debugf("Sending command from queue: %s with length %d", cmd, len(cmd))
		return StateCommand, true
	}

	now := d.now()
	if d.polled && now.Sub(d.lastPoll) <= d.pollInterval {
		return StateIdle, true
	}
	d.polled = true
	d.lastPoll = now

	entry, err := d.polls.Advance()
	if err != nil {
		d.log.Debug(err)
		return StateIdle, true
	}
	d.send(entry.Command)
	d.log.Debugf("Sending polling command: %s (len=%d)", entry.Command, len(entry.Command))
	return StatePoll, true
}

// send flushes stale input, resets the frame and writes one request.
func (d *Driver) send(command string) {
	if n := Drain(d.transport); n > 0 {
		d.log.Debugf("Discarded %d stale bytes", n)
	}
	d.frame.Reset()
	d.decodeErr = nil
	d.started = d.now()

	buf := make([]byte, 0, len(command)+1)
	buf = append(buf, command...)
	buf = append(buf, Terminator)
	if _, err := d.transport.Write(buf); err != nil {
		d.log.Errorf("write %q: %s", command, err)
	}
}

func (d *Driver) receive() bool {
	switch d.frame.ReadFrom(d.transport) {
	case FrameComplete:
		d.log.Debugf("tty recv: %s", d.frame.String())
		return true
	case FrameOverflow:
		d.log.Warnf("%s: reply longer than %d bytes discarded", ErrFrameOverflow, d.frame.Cap())
	}
	return false
}

func (d *Driver) expired() bool {
	return d.now().Sub(d.started) > d.timeout
}

func (d *Driver) awaitCommand() (State, bool) {
	if d.receive() {
		return StateCommandComplete, false
	}
	if d.expired() {
		cmd, _ := d.queue.Next()
		d.log.Warnf("Command timeout: %s", cmd)
		return StateCommandComplete, false
	}
	return StateCommand, true
}

func (d *Driver) completeCommand() (State, bool) {
	cmd, _ := d.queue.Next()
	err := ClassifyReply(cmd, d.frame.Bytes())
	switch {
	case err == nil && ExpectsAck(cmd):
		d.log.Infof("Command successful: ACK for '%s'", cmd)
	case err == nil:
		d.log.Info("Command successful: no response expected")
	case ExpectsAck(cmd):
		d.log.Errorf("Command failed: %s for '%s'", err, cmd)
	default:
		d.log.Errorf("Command failed: %s for '%s' (%q)", err, cmd, d.frame.String())
	}

	if err == nil {
		for _, sw := range ClearedSwitches(cmd) {
			d.publisher.PublishSwitch(sw, false)
		}
	}

	d.queue.Complete()
	d.report(CommandExchange, cmd, err)
	return StateIdle, true
}

func (d *Driver) awaitPoll() (State, bool) {
	if d.receive() {
		return StatePollComplete, false
	}
	if d.expired() {
		entry := d.polls.Current()
		d.log.Warnf("Polling timeout: %s", entry.Command)
		d.pollFailed(entry, ErrTimeout)
		return StateIdle, true
	}
	return StatePoll, true
}

func (d *Driver) checkPoll() (State, bool) {
	entry := d.polls.Current()
	if IsNakPoll(d.frame.Bytes()) {
		d.log.Warnf("Polling command failed (NAK): %s", entry.Command)
		d.pollFailed(entry, ErrNakReceived)
		return StateIdle, true
	}
	return StatePollChecked, false
}

func (d *Driver) decodePoll() (State, bool) {
	entry := d.polls.Current()
	frame := d.frame.Bytes()

	switch entry.Kind {
	case PollStatus:
		d.log.Debug("Decode Q1")
		s, err := DecodeStatus(frame)
		if err != nil {
			d.log.Warn(err)
			d.pollFailed(entry, err)
			return StateIdle, true
		}
		d.log.Debugf("Q1 → Grid:%.1fV Out:%.1fV Load:%d%% Temp:%.1f Beeper:%t",
			s.GridVoltage, s.ACOutputVoltage, s.ACOutputLoadPercent, s.Temperature, s.Status.BeeperOn)
		d.readings.Status, d.readings.HasStatus = s, true
		d.publisher.PublishText(LastQ1, s.Raw)

	case PollRatings:
		d.log.Debug("Decode F")
		r, err := DecodeRatings(frame)
		if err != nil {
			d.log.Warn(err)
			entry.Errors++
			d.decodeErr = err
		} else {
			d.log.Debugf("F → OutV:%.1fV Cur:%dA BatV:%.2fV Freq:%.1fHz",
				r.VoltageRating, r.CurrentRating, r.BatteryVoltage, r.FrequencyRating)
			d.readings.Ratings, d.readings.HasRatings = r, true
		}
		d.publisher.PublishText(LastF, r.Raw)

	case PollInfo:
		info := DecodeInfo(frame)
		d.log.Debugf("UPS Info: %s", info)
		d.readings.Info, d.readings.HasInfo = info, true
		d.publisher.PublishText(UPSInfo, info)

	default:
		err := errors.Wrapf(ErrUnknownPollKind, "%s: %s", entry.Command, entry.Kind)
		d.log.Warn(err)
		d.pollFailed(entry, err)
		return StateIdle, true
	}
	return StatePollDecoded, false
}

func (d *Driver) publishPoll() (State, bool) {
	entry := d.polls.Current()
	p := d.publisher

	switch entry.Kind {
	case PollStatus:
		s := d.readings.Status
		p.PublishNumber(GridVoltage, s.GridVoltage)
		p.PublishNumber(GridFaultVoltage, s.GridFaultVoltage)
		p.PublishNumber(ACOutputVoltage, s.ACOutputVoltage)
		p.PublishNumber(ACOutputLoadPercent, float64(s.ACOutputLoadPercent))
		p.PublishNumber(GridFrequency, s.GridFrequency)
		p.PublishNumber(BatteryVoltage, s.BatteryVoltage)
		p.PublishNumber(Temperature, s.Temperature)

		b := s.Status
		p.PublishBinary(UtilityFail, b.UtilityFail)
		p.PublishBinary(BatteryLow, b.BatteryLow)
		p.PublishBinary(BypassActive, b.BypassActive)
		p.PublishBinary(UPSFailed, b.UPSFailed)
		p.PublishBinary(UPSTypeStandby, b.UPSTypeStandby)
		p.PublishBinary(TestInProgress, b.TestInProgress)
		p.PublishBinary(ShutdownActive, b.ShutdownActive)
		p.PublishBinary(BeeperOn, b.BeeperOn)
		p.PublishSwitch(BeeperSwitch, b.BeeperOn)

		p.PublishSwitch(QuickTestSwitch, b.TestInProgress)
		p.PublishSwitch(DeepTestSwitch, b.TestInProgress)
		p.PublishSwitch(TenMinutesTestSwitch, b.TestInProgress)

	case PollRatings:
		if d.decodeErr == nil {
			r := d.readings.Ratings
			p.PublishNumber(ACOutputRatingVoltage, r.VoltageRating)
			p.PublishNumber(ACOutputRatingCurrent, float64(r.CurrentRating))
			p.PublishNumber(BatteryRatingVoltage, r.BatteryVoltage)
			p.PublishNumber(ACOutputRatingFrequency, r.FrequencyRating)
		}
	}

	d.report(PollExchange, entry.Command, d.decodeErr)
	return StateIdle, true
}

func (d *Driver) pollFailed(entry *PollEntry, err error) {
	entry.Errors++
	d.report(PollExchange, entry.Command, err)
}

func (d *Driver) report(kind ExchangeKind, command string, err error) {
	if d.reporter == nil {
		return
	}
	d.reporter.Report(Result{
		Kind:    kind,
		Command: command,
		Err:     err,
		Elapsed: d.now().Sub(d.started),
	})
}
