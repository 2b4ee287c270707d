package powermust

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	statusPrefix  = '('
	ratingsPrefix = '#'
	nakPollPrefix = "(NAK"
)

// StatusBits is the <b7..b0> switch field of a Q1 reply, b7 first.
type StatusBits struct {
	UtilityFail    bool // mains failed, running on battery
	BatteryLow     bool
	BypassActive   bool // bypass or buck/boost active
	UPSFailed      bool
	UPSTypeStandby bool // 0 means on-line
	TestInProgress bool
	ShutdownActive bool
	BeeperOn       bool
}

// ParseStatusBits reads up to eight '0'/'1' characters. Missing positions
// read as false and only '1' sets a bit.
func ParseStatusBits(s string) StatusBits {
	bit := func(i int) bool {
		return i < len(s) && s[i] == '1'
	}
	return StatusBits{
		UtilityFail:    bit(0),
		BatteryLow:     bit(1),
		BypassActive:   bit(2),
		UPSFailed:      bit(3),
		UPSTypeStandby: bit(4),
		TestInProgress: bit(5),
		ShutdownActive: bit(6),
		BeeperOn:       bit(7),
	}
}

// StatusLine is a decoded Q1 reply:
//
//	(228.0 228.0 228.4 006 50.2 27.4 25.0 00001000
type StatusLine struct {
	GridVoltage         float64
	GridFaultVoltage    float64
	ACOutputVoltage     float64
	ACOutputLoadPercent int
	GridFrequency       float64
	BatteryVoltage      float64
	Temperature         float64 // NaN when the UPS has no sensor
	Status              StatusBits
	Raw                 string
}

// RatingsLine is a decoded F reply:
//
//	#220.0 007 24.00 50.0
type RatingsLine struct {
	VoltageRating   float64
	CurrentRating   int
	BatteryVoltage  float64
	FrequencyRating float64
	Raw             string
}

// IsNakPoll reports whether a poll reply is the UPS refusing the query.
func IsNakPoll(frame []byte) bool {
	return strings.HasPrefix(string(frame), nakPollPrefix)
}

// DecodeStatus parses a Q1 frame. Fewer than eight fields is an
// ErrDecodeShortfall.
func DecodeStatus(frame []byte) (StatusLine, error) {
	var (
		r    StatusLine
		temp string
		bits string
	)
	raw := strings.TrimSuffix(string(frame), string(Terminator))
	sc := scanner{s: raw}
	n := sc.scan(statusPrefix,
		sc.number(&r.GridVoltage),
		sc.number(&r.GridFaultVoltage),
		sc.number(&r.ACOutputVoltage),
		sc.integer(&r.ACOutputLoadPercent),
		sc.number(&r.GridFrequency),
		sc.number(&r.BatteryVoltage),
		sc.word(&temp, 7),
		sc.word(&bits, 15),
	)
	if n < 8 {
		return r, errors.Wrapf(ErrDecodeShortfall, "status assigned %d/8 from %q", n, raw)
	}
	r.Temperature = parseTemperature(temp)
	r.Status = ParseStatusBits(bits)
	r.Raw = raw
	return r, nil
}

// DecodeRatings parses an F frame. Raw is filled in even when fewer than
// four fields could be read.
func DecodeRatings(frame []byte) (RatingsLine, error) {
	var r RatingsLine
	r.Raw = strings.TrimSuffix(string(frame), string(Terminator))
	sc := scanner{s: r.Raw}
	n := sc.scan(ratingsPrefix,
		sc.number(&r.VoltageRating),
		sc.integer(&r.CurrentRating),
		sc.number(&r.BatteryVoltage),
		sc.number(&r.FrequencyRating),
	)
	if n < 4 {
		return r, errors.Wrapf(ErrDecodeShortfall, "ratings assigned %d/4 from %q", n, r.Raw)
	}
	return r, nil
}

// DecodeInfo returns the I reply as text.
func DecodeInfo(frame []byte) string {
	return strings.TrimSuffix(string(frame), string(Terminator))
}

func parseTemperature(s string) float64 {
	if s == "--.-" || s == "?.?" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// scanner reads whitespace separated conversions the way the UPS firmware
// documentation describes the replies: a literal prefix then a fixed list
// of fields, stopping at the first one that does not parse.
type scanner struct {
	s   string
	pos int
}

type conversion func() bool

func (sc *scanner) scan(prefix byte, convs ...conversion) int {
	if sc.pos >= len(sc.s) || sc.s[sc.pos] != prefix {
		return 0
	}
	sc.pos++
	n := 0
	for _, c := range convs {
		if !c() {
			break
		}
		n++
	}
	return n
}

// next returns the next run of non-space characters, at most width long when
// width is positive.
func (sc *scanner) next(width int) string {
	for sc.pos < len(sc.s) && isSpace(sc.s[sc.pos]) {
		sc.pos++
	}
	start := sc.pos
	for sc.pos < len(sc.s) && !isSpace(sc.s[sc.pos]) {
		if width > 0 && sc.pos-start == width {
			break
		}
		sc.pos++
	}
	return sc.s[start:sc.pos]
}

func (sc *scanner) number(dst *float64) conversion {
	return func() bool {
		f, err := strconv.ParseFloat(sc.next(0), 64)
		if err != nil {
			return false
		}
		*dst = f
		return true
	}
}

func (sc *scanner) integer(dst *int) conversion {
	return func() bool {
		i, err := strconv.Atoi(sc.next(0))
		if err != nil {
			return false
		}
		*dst = i
		return true
	}
}

func (sc *scanner) word(dst *string, width int) conversion {
	return func() bool {
		w := sc.next(width)
		if w == "" {
			return false
		}
		*dst = w
		return true
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
