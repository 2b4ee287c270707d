package powermust

import "errors"

// Exchange failures. None of them is fatal: the driver logs, reports and
// returns to idle.
var (
	ErrQueueFull          = errors.New("command queue full")
	ErrNoResponse         = errors.New("no response")
	ErrNakReceived        = errors.New("NAK received")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrFrameOverflow      = errors.New("frame overflow")
	ErrDecodeShortfall    = errors.New("decode shortfall")
	ErrTimeout            = errors.New("timeout")
	ErrNoPoll             = errors.New("no polling command registered")
	ErrUnknownPollKind    = errors.New("unknown poll kind")
)
