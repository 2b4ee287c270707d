package powermust

import (
	"bytes"
	"strings"
)

var ackCommands = map[string]bool{
	CmdTest:           true,
	CmdTestUntilLow:   true,
	"T10":             true,
	CmdCancelTest:     true,
	CmdToggleBeeper:   true,
	CmdCancelShutdown: true,
	CmdCancelLowTest:  true,
}

// ExpectsAck reports whether the UPS answers command with ACK or NAK.
// Shutdown commands carry delay suffixes and all start with 'S'.
func ExpectsAck(command string) bool {
	return ackCommands[command] || strings.HasPrefix(command, "S")
}

// ClassifyReply decides whether a command succeeded given the bytes
// received for it. A nil error means success.
func ClassifyReply(command string, reply []byte) error {
	if !ExpectsAck(command) {
		if len(reply) == 0 {
			return nil
		}
		return ErrUnexpectedResponse
	}
	reply = bytes.TrimSuffix(reply, []byte{Terminator})
	if len(reply) == 0 {
		return ErrNoResponse
	}
	if bytes.HasPrefix(reply, []byte("NAK")) {
		return ErrNakReceived
	}
	return nil
}

// ClearedSwitches lists the momentary switches to turn off once command has
// been acknowledged.
func ClearedSwitches(command string) []Switch {
	switch {
	case command == CmdTest:
		return []Switch{QuickTestSwitch}
	case command == CmdTestUntilLow:
		return []Switch{DeepTestSwitch}
	case command == "T10":
		return []Switch{TenMinutesTestSwitch}
	case command == CmdCancelTest:
		return []Switch{QuickTestSwitch, DeepTestSwitch, TenMinutesTestSwitch}
	case strings.HasPrefix(command, "S"):
		if strings.Contains(command, "R") {
			return []Switch{ShutdownRestoreSwitch}
		}
		return []Switch{ShutdownSwitch}
	case command == CmdCancelShutdown:
		return []Switch{CancelShutdownSwitch}
	}
	return nil
}
