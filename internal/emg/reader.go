package emg

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/emgfes/internal/serialmux"
)

// Reader reads samples from the EMG port. Each call is an independent
// attempt: there is no retry and no backoff, so a dead port costs one read
// timeout per call.
type Reader struct {
	lines    *serialmux.LineReader
	channels int
}

// NewReader reads records of the given channel count from port. The port's
// read timeout bounds every ReadSample call.
func NewReader(port io.Reader, channels int) *Reader {
	return &Reader{
		lines:    serialmux.NewLineReader(port, serialmux.DefaultMaxLineLength),
		channels: channels,
	}
}

// ReadSample returns the next record. Errors wrap ErrMalformed for records
// that arrived but did not parse, and ErrNoData when nothing arrived.
func (r *Reader) ReadSample() (Sample, error) {
	line, err := r.lines.ReadLine()
	switch {
	case errors.Is(err, serialmux.ErrLineTooLong):
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrNoData, err)
	}
	return ParseSample(line, r.channels)
}

// Channels is the record width this reader accepts.
func (r *Reader) Channels() int { return r.channels }
