package main

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort serves queued chunks to Read and records writes.
type fakePort struct {
	serial.Port

	rx     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []byte
}

func newFakePort() *fakePort {
	return &fakePort{rx: make(chan []byte, 8), closed: make(chan struct{})}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case chunk := <-p.rx:
		return copy(buf, chunk), nil
	case <-p.closed:
		return 0, errors.New("port closed")
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func TestTTYBuffersReceivedBytes(t *testing.T) {
	port := newFakePort()
	tty := newTTY(port)
	go tty.readLoop()
	defer tty.Close()

	assert.Zero(t, tty.Available())
	_, err := tty.ReadByte()
	assert.Error(t, err)

	port.rx <- []byte("(ACK")
	port.rx <- []byte("\r")
	require.Eventually(t, func() bool { return tty.Available() == 5 }, time.Second, 5*time.Millisecond)

	var got []byte
	for tty.Available() > 0 {
		b, err := tty.ReadByte()
		require.NoError(t, err)
		got = append(got, b)
	}
	assert.Equal(t, "(ACK\r", string(got))
}

func TestTTYWrite(t *testing.T) {
	port := newFakePort()
	tty := newTTY(port)
	go tty.readLoop()
	defer tty.Close()

	n, err := tty.Write([]byte("Q1\r"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "Q1\r", string(port.written))
}

func TestTTYCloseStopsReader(t *testing.T) {
	port := newFakePort()
	tty := newTTY(port)
	go tty.readLoop()

	done := make(chan struct{})
	go func() {
		assert.NoError(t, tty.Close())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}
