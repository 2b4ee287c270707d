package powermust

import (
	"errors"
	"time"
)

type fakeTransport struct {
	rx      []byte
	written []string
	onWrite func(cmd string) string
}

func (f *fakeTransport) Available() int { return len(f.rx) }

func (f *fakeTransport) ReadByte() (byte, error) {
	if len(f.rx) == 0 {
		return 0, errors.New("empty")
	}
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	cmd := string(p)
	f.written = append(f.written, cmd)
	if f.onWrite != nil {
		f.rx = append(f.rx, f.onWrite(cmd)...)
	}
	return len(p), nil
}

func (f *fakeTransport) feed(s string) {
	f.rx = append(f.rx, s...)
}

type publishCall struct {
	name  string
	value any
}

type recorder struct {
	calls []publishCall
}

func (r *recorder) PublishNumber(f Field, v float64) {
	r.calls = append(r.calls, publishCall{string(f), v})
}

func (r *recorder) PublishBinary(f Field, v bool) {
	r.calls = append(r.calls, publishCall{string(f), v})
}

func (r *recorder) PublishText(f Field, v string) {
	r.calls = append(r.calls, publishCall{string(f), v})
}

func (r *recorder) PublishSwitch(s Switch, on bool) {
	r.calls = append(r.calls, publishCall{"switch:" + string(s), on})
}

func (r *recorder) get(name string) (any, bool) {
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].name == name {
			return r.calls[i].value, true
		}
	}
	return nil, false
}

type results struct {
	list []Result
}

func (r *results) Report(res Result) {
	r.list = append(r.list, res)
}

type clock struct {
	t time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
