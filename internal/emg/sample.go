// Package emg turns the acquisition board's serial text into samples and
// groups them into fixed-size classification windows.
package emg

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ErrMalformed marks a record that is not exactly Channels integers.
	ErrMalformed = errors.New("malformed EMG record")
	// ErrNoData marks a read that produced no record at all: a timeout or a
	// transport error.
	ErrNoData = errors.New("no EMG data")
)

// Sample is one acquisition tick: one reading per channel, in channel order.
// Samples are never modified after parsing.
type Sample []int

// ParseSample parses a comma separated record of exactly channels integers.
// Surrounding whitespace, including a trailing carriage return, is ignored.
func ParseSample(line []byte, channels int) (Sample, error) {
	if !utf8.Valid(line) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrMalformed)
	}
	line = bytes.TrimSpace(line)
	fields := strings.Split(string(line), ",")
	if len(fields) != channels {
		return nil, fmt.Errorf("%w: %q has %d fields, want %d", ErrMalformed, line, len(fields), channels)
	}

	s := make(Sample, channels)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: field %d of %q: %v", ErrMalformed, i, line, err)
		}
		s[i] = v
	}
	return s, nil
}

// String renders the sample in wire format, without the newline.
func (s Sample) String() string {
	var b strings.Builder
	for i, v := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}
