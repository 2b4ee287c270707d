package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// readPollTimeout bounds a blocking Read so the reader goroutine notices Close.
const readPollTimeout = 100 * time.Millisecond

// TTY adapts a serial port to powermust.Transport: a reader goroutine moves
// received bytes into a buffer that the driver drains without blocking.
type TTY struct {
	Serial serial.Port

	mu      sync.Mutex
	pending []byte
	closed  chan struct{}
	done    chan struct{}
}

func serialInit(config SerialConfig) (*TTY, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	Logger.Infof("Try open port: '%s'", config.Port)

	s, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open port %s: %w", config.Port, err)
	}
	if err := s.SetReadTimeout(readPollTimeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	tty := newTTY(s)
	go tty.readLoop()
	return tty, nil
}

func newTTY(port serial.Port) *TTY {
	return &TTY{
		Serial: port,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (tty *TTY) readLoop() {
	defer close(tty.done)
	buf := make([]byte, 128)
	for {
		n, err := tty.Serial.Read(buf)
		select {
		case <-tty.closed:
			return
		default:
		}
		if err != nil {
			var perr *serial.PortError
			if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
				return
			}
			Logger.Errorf("read err: %s", err.Error())
			time.Sleep(readPollTimeout)
			continue
		}
		if n == 0 {
			continue
		}
		tty.mu.Lock()
		tty.pending = append(tty.pending, buf[:n]...)
		tty.mu.Unlock()
	}
}

func (tty *TTY) Available() int {
	tty.mu.Lock()
	defer tty.mu.Unlock()
	return len(tty.pending)
}

func (tty *TTY) ReadByte() (byte, error) {
	tty.mu.Lock()
	defer tty.mu.Unlock()
	if len(tty.pending) == 0 {
		return 0, errors.New("no data available")
	}
	b := tty.pending[0]
	tty.pending = tty.pending[1:]
	return b, nil
}

func (tty *TTY) Write(p []byte) (int, error) {
	Logger.Tracef("tty send: %q", p)
	return tty.Serial.Write(p)
}

func (tty *TTY) Close() error {
	close(tty.closed)
	err := tty.Serial.Close()
	<-tty.done
	return err
}

// printPorts lists the serial ports found on this machine.
func printPorts() {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		Logger.Fatal(err.Error())
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found!")
		return
	}
	for _, port := range ports {
		fmt.Printf("Found port: %s\n", port.Name)
		if port.IsUSB {
			fmt.Printf("   USB ID     %s:%s\n", port.VID, port.PID)
			fmt.Printf("   USB serial %s\n", port.SerialNumber)
		}
	}
}
