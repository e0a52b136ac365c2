package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// ErrPortClosed is returned by the test and capture ports after Close.
var ErrPortClosed = errors.New("serial port closed")

// CapturePort stands in for an output-only device: every write is appended to
// a file and reads block until the port is closed.
type CapturePort struct {
	r *io.PipeReader
	w *io.PipeWriter
	f *os.File

	mu     sync.Mutex
	closed bool
}

// NewCapturePort creates (or truncates) the capture file at path.
func NewCapturePort(path string) (*CapturePort, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	r, w := io.Pipe()
	log.Printf("Writing commands for capture port to %s", f.Name())
	return &CapturePort{r: r, w: w, f: f}, nil
}

func (c *CapturePort) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *CapturePort) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrPortClosed
	}
	return c.f.Write(p)
}

// SetReadTimeout is accepted and ignored; reads end on Close.
func (c *CapturePort) SetReadTimeout(time.Duration) error { return nil }

func (c *CapturePort) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.w.CloseWithError(ErrPortClosed)
	return c.f.Close()
}

// TestableSerialPort implements TimeoutSerialPorter with configurable
// behaviour for testing. It provides fine-grained control over reads, writes,
// errors, and latency.
//
// Reads on an empty buffer depend on the read timeout: with a timeout set the
// call waits up to that long for AddReadData and then returns (0, nil) like a
// real port; with BlockReads it waits until data arrives or Close is called;
// otherwise it returns io.EOF.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes Write report one byte fewer than it was given
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	// data is signalled (non-blocking) on every AddReadData and closed on Close
	data chan struct{}
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		data:        make(chan struct{}, 1),
	}
}

// Read reads from the read buffer, optionally simulating latency, timeouts
// and errors.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	t.ReadCalls++

	if t.Closed {
		t.mu.Unlock()
		return 0, ErrPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		t.mu.Unlock()
		return 0, err
	}
	latency, timeout, block := t.ReadLatency, t.ReadTimeout, t.BlockReads
	t.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		t.mu.Lock()
		if t.Closed {
			t.mu.Unlock()
			return 0, ErrPortClosed
		}
		if t.ReadBuffer.Len() > 0 {
			n, err := t.ReadBuffer.Read(p)
			t.mu.Unlock()
			return n, err
		}
		t.mu.Unlock()

		if deadline == nil && !block {
			return 0, io.EOF
		}
		select {
		case <-t.data:
		case <-deadline:
			return 0, nil
		}
	}
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite && len(p) > 0 {
		return t.WriteBuffer.Write(p[:len(p)-1])
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed and wakes any blocked reader.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.Closed {
		t.Closed = true
		close(t.data)
	}
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	if t.Closed {
		return
	}
	select {
	case t.data <- struct{}{}:
	default:
	}
}

// GetWrittenData returns a copy of all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// Calls returns the read and write call counts.
func (t *TestableSerialPort) Calls() (reads, writes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ReadCalls, t.WriteCalls
}
