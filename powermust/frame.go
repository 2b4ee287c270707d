package powermust

// ReadBufferLength bounds a single reply frame, terminator excluded.
const ReadBufferLength = 128

// Terminator ends every command and every reply on the wire.
const Terminator byte = '\r'

// Transport is the non-blocking byte channel to the UPS. Available reports
// how many bytes can be read right now; ReadByte must not block when
// Available is positive.
type Transport interface {
	Available() int
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
}

// FrameStatus is the outcome of feeding bytes to a FrameReader.
type FrameStatus int

const (
	FramePending FrameStatus = iota
	FrameComplete
	FrameOverflow
)

// FrameReader accumulates one terminator-delimited reply.
type FrameReader struct {
	buf      [ReadBufferLength]byte
	n        int
	complete bool
}

// Reset discards any accumulated bytes.
func (f *FrameReader) Reset() {
	f.n = 0
	f.complete = false
}

// Feed appends one byte. The terminator is not stored. A byte arriving at a
// full buffer abandons the frame and leaves it empty.
func (f *FrameReader) Feed(b byte) FrameStatus {
	if f.complete {
		return FrameComplete
	}
	if b == Terminator {
		f.complete = true
		return FrameComplete
	}
	if f.n >= len(f.buf) {
		f.n = 0
		return FrameOverflow
	}
	f.buf[f.n] = b
	f.n++
	return FramePending
}

// ReadFrom consumes the bytes available on t until the frame completes or
// nothing is left. On completion or overflow whatever else is pending on
// the transport is drained. A read error ends the pass with FramePending.
func (f *FrameReader) ReadFrom(t Transport) FrameStatus {
	for t.Available() > 0 {
		b, err := t.ReadByte()
		if err != nil {
			return FramePending
		}
		switch st := f.Feed(b); st {
		case FrameComplete:
			Drain(t)
			return st
		case FrameOverflow:
			Drain(t)
			return st
		}
	}
	return FramePending
}

// Bytes returns a view of the frame content without the terminator. The
// view is only valid until the next Feed or Reset.
func (f *FrameReader) Bytes() []byte {
	return f.buf[:f.n]
}

// String returns a copy of the frame content.
func (f *FrameReader) String() string {
	return string(f.buf[:f.n])
}

// Len returns the number of content bytes.
func (f *FrameReader) Len() int {
	return f.n
}

// Cap returns the buffer capacity.
func (f *FrameReader) Cap() int {
	return len(f.buf)
}

// Complete reports whether the terminator has been seen.
func (f *FrameReader) Complete() bool {
	return f.complete
}

// Drain discards every byte currently available on t and returns how many
// were dropped.
func Drain(t Transport) int {
	n := 0
	for t.Available() > 0 {
		if _, err := t.ReadByte(); err != nil {
			break
		}
		n++
	}
	return n
}
