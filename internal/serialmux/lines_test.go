package serialmux

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// chunkReader returns one chunk per Read and (0, nil) once exhausted, like a
// serial port whose read timeout keeps expiring.
type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestLineReaderSplitsLines(t *testing.T) {
	r := NewLineReader(&chunkReader{chunks: []string{"1,2,3,4,5\n6,7", ",8,9,10\r\n"}}, 0)

	line, err := r.ReadLine()
	if err != nil || string(line) != "1,2,3,4,5" {
		t.Fatalf("ReadLine() = %q, %v; want %q", line, err, "1,2,3,4,5")
	}
	line, err = r.ReadLine()
	if err != nil || string(line) != "6,7,8,9,10\r" {
		t.Fatalf("ReadLine() = %q, %v; want partial line joined", line, err)
	}
	if _, err := r.ReadLine(); !errors.Is(err, ErrReadTimeout) {
		t.Errorf("ReadLine() on idle port error = %v, want ErrReadTimeout", err)
	}
}

func TestLineReaderKeepsPartialLineAcrossTimeout(t *testing.T) {
	src := &chunkReader{chunks: []string{"10,20"}}
	r := NewLineReader(src, 0)

	if _, err := r.ReadLine(); !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("ReadLine() error = %v, want ErrReadTimeout", err)
	}
	src.chunks = []string{",30,40,50\n"}
	line, err := r.ReadLine()
	if err != nil || string(line) != "10,20,30,40,50" {
		t.Errorf("ReadLine() = %q, %v; want the completed line", line, err)
	}
}

func TestLineReaderDiscardsLongLines(t *testing.T) {
	long := strings.Repeat("9", 40)
	src := &chunkReader{chunks: []string{long, long, "\n1,2,3,4,5\n"}}
	r := NewLineReader(src, 16)

	if _, err := r.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("ReadLine() error = %v, want ErrLineTooLong", err)
	}
	line, err := r.ReadLine()
	if err != nil || string(line) != "1,2,3,4,5" {
		t.Errorf("ReadLine() after overlong line = %q, %v; want next good line", line, err)
	}
}

func TestLineReaderPassesTransportErrors(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("i/o error")
	r := NewLineReader(port, 0)

	if _, err := r.ReadLine(); err == nil || err.Error() != "i/o error" {
		t.Errorf("ReadLine() error = %v, want i/o error", err)
	}
	if _, err := r.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadLine() on drained non-timeout port error = %v, want io.EOF", err)
	}
}

func TestLineReaderBoundedByPortTimeout(t *testing.T) {
	port := NewTestableSerialPort()
	port.SetReadTimeout(30 * time.Millisecond)
	r := NewLineReader(port, 0)

	start := time.Now()
	_, err := r.ReadLine()
	if !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("ReadLine() error = %v, want ErrReadTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ReadLine() took %v, want about one read timeout", elapsed)
	}
}

func TestTakeLine(t *testing.T) {
	r := NewLineReader(&chunkReader{}, 8)

	r.pending = []byte("1,2")
	if line, ok, err := r.takeLine(); ok || err != nil || line != nil {
		t.Errorf("takeLine() on partial line = %q, %v, %v; want nil, false, nil", line, ok, err)
	}

	r.pending = []byte("1,2\n3")
	line, ok, err := r.takeLine()
	if !ok || err != nil || string(line) != "1,2" {
		t.Errorf("takeLine() = %q, %v, %v; want \"1,2\", true, nil", line, ok, err)
	}
	if string(r.pending) != "3" {
		t.Errorf("pending after takeLine() = %q, want %q", r.pending, "3")
	}

	r.pending = []byte("123456789012")
	if _, ok, err := r.takeLine(); !ok || !errors.Is(err, ErrLineTooLong) {
		t.Errorf("takeLine() on overlong line = %v, %v; want true, ErrLineTooLong", ok, err)
	}
}
