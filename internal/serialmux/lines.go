package serialmux

import (
	"bytes"
	"errors"
	"io"
)

var (
	// ErrReadTimeout is returned when a bounded read saw no bytes.
	ErrReadTimeout = errors.New("serial read timed out")
	// ErrLineTooLong is returned when a line exceeds the reader's maximum.
	// The rest of that line is skipped.
	ErrLineTooLong = errors.New("serial line too long")
)

// DefaultMaxLineLength comfortably fits a line of five 10-bit readings.
const DefaultMaxLineLength = 256

// LineReader splits a port's byte stream into newline-terminated lines. Unlike
// bufio.Scanner it surfaces each timed-out read as ErrReadTimeout so that the
// caller regains control at least once per read timeout. A partial line is
// kept across timeouts.
type LineReader struct {
	r          io.Reader
	maxLen     int
	pending    []byte
	scratch    []byte
	discarding bool
}

// NewLineReader wraps r. maxLen <= 0 selects DefaultMaxLineLength.
func NewLineReader(r io.Reader, maxLen int) *LineReader {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	return &LineReader{
		r:       r,
		maxLen:  maxLen,
		scratch: make([]byte, 512),
	}
}

// ReadLine returns the next line without its trailing newline. It keeps
// reading until a line completes, a read comes back empty (ErrReadTimeout) or
// the port fails, so it never blocks longer than one read timeout past the
// last byte received.
func (l *LineReader) ReadLine() ([]byte, error) {
	for {
		if line, ok, err := l.takeLine(); ok {
			return line, err
		}

		n, err := l.r.Read(l.scratch)
		if n == 0 {
			if err != nil {
				return nil, err
			}
			return nil, ErrReadTimeout
		}
		l.pending = append(l.pending, l.scratch[:n]...)
	}
}

// takeLine pops the next complete line from pending. ok is false when more
// bytes are needed.
func (l *LineReader) takeLine() (line []byte, ok bool, err error) {
	for {
		i := bytes.IndexByte(l.pending, '\n')
		if l.discarding {
			if i < 0 {
				l.pending = l.pending[:0]
				return nil, false, nil
			}
			l.pending = append(l.pending[:0], l.pending[i+1:]...)
			l.discarding = false
			continue
		}
		if i < 0 {
			if len(l.pending) > l.maxLen {
				l.pending = l.pending[:0]
				l.discarding = true
				return nil, true, ErrLineTooLong
			}
			return nil, false, nil
		}
		if i > l.maxLen {
			l.pending = append(l.pending[:0], l.pending[i+1:]...)
			return nil, true, ErrLineTooLong
		}
		line = make([]byte, i)
		copy(line, l.pending[:i])
		l.pending = append(l.pending[:0], l.pending[i+1:]...)
		return line, true, nil
	}
}

// Reset drops any partially read line.
func (l *LineReader) Reset() {
	l.pending = l.pending[:0]
	l.discarding = false
}
