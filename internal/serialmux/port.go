package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is a SerialPorter whose reads can be bounded. With a
// timeout set, a Read that sees no data returns (0, nil) once the timeout
// elapses, which is how go.bug.st/serial reports it.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// PortOpener opens a port at path. OpenPort is the real implementation; dev
// mode and tests substitute their own.
type PortOpener func(path string, opts PortOptions) (TimeoutSerialPorter, error)
