package emg

// Window is a run of consecutive samples classified as one unit.
type Window []Sample

// WindowBuffer accumulates samples into non-overlapping windows. When more
// than a window's worth is pushed before draining, the oldest samples are
// dropped in favour of the freshest.
type WindowBuffer struct {
	size    int
	samples []Sample
}

// NewWindowBuffer returns a buffer for windows of size samples.
func NewWindowBuffer(size int) *WindowBuffer {
	if size < 1 {
		size = 1
	}
	return &WindowBuffer{size: size, samples: make([]Sample, 0, size)}
}

// Push appends a sample.
func (b *WindowBuffer) Push(s Sample) {
	b.samples = append(b.samples, s)
}

// IsFull reports whether a whole window is buffered.
func (b *WindowBuffer) IsFull() bool { return len(b.samples) >= b.size }

// Len returns the number of buffered samples.
func (b *WindowBuffer) Len() int { return len(b.samples) }

// Size returns the window size.
func (b *WindowBuffer) Size() int { return b.size }

// Drain returns a copy of the most recent window and empties the buffer. On
// a buffer that is not full it returns whatever is held.
func (b *WindowBuffer) Drain() Window {
	start := 0
	if len(b.samples) > b.size {
		start = len(b.samples) - b.size
	}
	w := make(Window, len(b.samples)-start)
	copy(w, b.samples[start:])
	b.Reset()
	return w
}

// Reset empties the buffer.
func (b *WindowBuffer) Reset() {
	clear(b.samples)
	b.samples = b.samples[:0]
}

// Last returns the newest sample of the window, or nil for an empty window.
func (w Window) Last() Sample {
	if len(w) == 0 {
		return nil
	}
	return w[len(w)-1]
}
