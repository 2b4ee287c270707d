package powermust

// CommandQueueLength is the number of pending command slots.
const CommandQueueLength = 6

// CommandQueue is a fixed ring of pending commands. The slot under the
// cursor stays occupied until its exchange has been fully processed.
type CommandQueue struct {
	slots    [CommandQueueLength]string
	position int
}

// Enqueue stores the command in the first empty slot scanning forward from
// the cursor. It returns the slot index, or ErrQueueFull when every slot is
// taken, in which case the command is dropped.
func (q *CommandQueue) Enqueue(command string) (int, error) {
	if command == "" {
		return -1, nil
	}
	for i := 0; i < CommandQueueLength; i++ {
		pos := (q.position + i) % CommandQueueLength
		if q.slots[pos] == "" {
			q.slots[pos] = command
			return pos, nil
		}
	}
	return -1, ErrQueueFull
}

// Next returns the command under the cursor without consuming it.
func (q *CommandQueue) Next() (string, bool) {
	cmd := q.slots[q.position]
	return cmd, cmd != ""
}

// Complete clears the slot under the cursor and advances the cursor.
func (q *CommandQueue) Complete() {
	q.slots[q.position] = ""
	q.position = (q.position + 1) % CommandQueueLength
}

// Len returns the number of occupied slots.
func (q *CommandQueue) Len() int {
	n := 0
	for _, s := range q.slots {
		if s != "" {
			n++
		}
	}
	return n
}

// Position returns the read cursor.
func (q *CommandQueue) Position() int {
	return q.position
}
