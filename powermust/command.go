package powermust

import (
	"fmt"
	"time"
)

// Wire commands of the Megatec protocol family.
const (
	CmdStatus         = "Q1"
	CmdRatings        = "F"
	CmdInfo           = "I"
	CmdTest           = "T"  // 10 second battery test
	CmdTestUntilLow   = "TL" // test until battery low
	CmdToggleBeeper   = "Q"
	CmdCancelShutdown = "C"
	CmdCancelTest     = "CT"
	CmdCancelLowTest  = "CL"
)

// MaxTestMinutes is the longest timed test the protocol can express.
const MaxTestMinutes = 99

// TestCommand builds T<n>, a battery test lasting n minutes (1..99).
func TestCommand(minutes int) (string, error) {
	if minutes < 1 || minutes > MaxTestMinutes {
		return "", fmt.Errorf("test duration %d out of range 1..%d minutes", minutes, MaxTestMinutes)
	}
	return fmt.Sprintf("T%02d", minutes), nil
}

// ShutdownCommand builds S<n> or S<n>R<m>. Delays below one minute are sent
// as tenths (.2 to .9), longer ones as whole minutes up to 10. A positive
// restore adds the restart delay in minutes (at least one, at most 9999).
func ShutdownCommand(delay, restore time.Duration) (string, error) {
	var cmd string
	switch {
	case delay < 0:
		return "", fmt.Errorf("negative shutdown delay %s", delay)
	case delay < time.Minute:
		tenths := int(delay / (6 * time.Second))
		if tenths < 2 {
			tenths = 2
		}
		cmd = fmt.Sprintf("S.%d", tenths)
	case delay <= 10*time.Minute:
		cmd = fmt.Sprintf("S%02d", int(delay/time.Minute))
	default:
		return "", fmt.Errorf("shutdown delay %s exceeds 10 minutes", delay)
	}
	if restore <= 0 {
		return cmd, nil
	}
	minutes := int(restore / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	if minutes > 9999 {
		return "", fmt.Errorf("restore delay %s exceeds 9999 minutes", restore)
	}
	return fmt.Sprintf("%sR%04d", cmd, minutes), nil
}

// SwitchCommand returns the wire command that turns sw on or off. Turning a
// test switch off cancels every running test; switches without an off
// action return false.
func SwitchCommand(sw Switch, on bool) (string, bool) {
	switch sw {
	case QuickTestSwitch:
		if on {
			return CmdTest, true
		}
		return CmdCancelTest, true
	case DeepTestSwitch:
		if on {
			return CmdTestUntilLow, true
		}
		return CmdCancelTest, true
	case TenMinutesTestSwitch:
		if on {
			return "T10", true
		}
		return CmdCancelTest, true
	case ShutdownSwitch:
		if on {
			return "S01", true
		}
		return CmdCancelShutdown, true
	case ShutdownRestoreSwitch:
		if on {
			return "S01R0001", true
		}
		return CmdCancelShutdown, true
	case CancelShutdownSwitch:
		if on {
			return CmdCancelShutdown, true
		}
	case BeeperSwitch:
		return CmdToggleBeeper, true
	}
	return "", false
}
