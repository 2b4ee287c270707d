package powermust

import "fmt"

// PollTableLength is the number of polling command slots.
const PollTableLength = 15

// PollKind identifies how a poll reply is decoded.
type PollKind int

const (
	PollStatus PollKind = iota + 1 // Q1
	PollRatings                    // F
	PollInfo                       // I
)

func (k PollKind) String() string {
	switch k {
	case PollStatus:
		return "status"
	case PollRatings:
		return "ratings"
	case PollInfo:
		return "info"
	}
	return fmt.Sprintf("PollKind(%d)", int(k))
}

// ParsePollKind accepts the names produced by String and the wire commands
// of the default polls.
func ParsePollKind(s string) (PollKind, error) {
	switch s {
	case "status", "Q1":
		return PollStatus, nil
	case "ratings", "F":
		return PollRatings, nil
	case "info", "I":
		return PollInfo, nil
	}
	return 0, fmt.Errorf("unknown poll kind %q", s)
}

// PollEntry is one registered polling command.
type PollEntry struct {
	Command string
	Kind    PollKind
	Errors  int
}

func (e PollEntry) empty() bool {
	return e.Command == ""
}

// PollTable cycles registered polls round-robin.
type PollTable struct {
	entries [PollTableLength]PollEntry
	last    int
}

// Register adds a polling command to the first empty slot. Registering a
// command already present, or registering into a full table, does nothing.
func (t *PollTable) Register(command string, kind PollKind) {
	if command == "" {
		return
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.empty() {
			*e = PollEntry{Command: command, Kind: kind}
			return
		}
		if e.Command == command {
			return
		}
	}
}

// Advance moves the cursor to the next registered poll and returns it. When
// nothing is registered it returns ErrNoPoll and leaves the cursor alone.
func (t *PollTable) Advance() (*PollEntry, error) {
	for i := 1; i <= PollTableLength; i++ {
		pos := (t.last + i) % PollTableLength
		if !t.entries[pos].empty() {
			t.last = pos
			return &t.entries[pos], nil
		}
	}
	return nil, ErrNoPoll
}

// Current returns the entry under the cursor, or nil if that slot is empty.
func (t *PollTable) Current() *PollEntry {
	e := &t.entries[t.last]
	if e.empty() {
		return nil
	}
	return e
}

// Cursor returns the rotation cursor.
func (t *PollTable) Cursor() int {
	return t.last
}

// Entries returns a copy of the registered entries in slot order.
func (t *PollTable) Entries() []PollEntry {
	var out []PollEntry
	for _, e := range t.entries {
		if !e.empty() {
			out = append(out, e)
		}
	}
	return out
}
