package emg

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/emgfes/internal/serialmux"
)

// Synthetic generates plausible surface EMG: a 10-bit baseline with noise on
// every channel, plus a contraction burst that rotates across the channels.
// After the last channel there is one rest period with no burst at all.
type Synthetic struct {
	channels int
	fs       float64
	period   int // samples per burst/rest period
	rng      *rand.Rand
	n        int
}

// NewSynthetic returns a generator sampling at fsHz. Each channel is active
// for periodS seconds in turn. The seed makes runs reproducible.
func NewSynthetic(channels int, fsHz, periodS float64, seed uint64) *Synthetic {
	period := int(periodS * fsHz)
	if period < 1 {
		period = 1
	}
	return &Synthetic{
		channels: channels,
		fs:       fsHz,
		period:   period,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

const (
	syntheticBaseline = 512
	syntheticNoise    = 12.0
	syntheticBurst    = 350.0
)

// Active returns the channel carrying the burst for sample index n, or -1
// during the rest period.
func (g *Synthetic) Active(n int) int {
	slot := (n / g.period) % (g.channels + 1)
	if slot == g.channels {
		return -1
	}
	return slot
}

// Next returns the next sample and advances time.
func (g *Synthetic) Next() Sample {
	t := float64(g.n) / g.fs
	active := g.Active(g.n)

	// raised-cosine envelope over each burst so onsets are not steps
	phase := float64(g.n%g.period) / float64(g.period)
	envelope := 0.5 - 0.5*math.Cos(2*math.Pi*phase)

	s := make(Sample, g.channels)
	for ch := range s {
		v := syntheticBaseline + syntheticNoise*g.rng.NormFloat64()
		// mains pickup the conditioner is expected to remove
		v += 6 * math.Sin(2*math.Pi*60*t+float64(ch))
		if ch == active {
			// EMG energy sits roughly between 50 and 150 Hz
			carrier := math.Sin(2*math.Pi*80*t) + 0.6*math.Sin(2*math.Pi*131*t+0.7)
			v += syntheticBurst * envelope * carrier * (0.8 + 0.4*g.rng.Float64())
		}
		s[ch] = int(math.Round(math.Max(0, math.Min(1023, v))))
	}
	g.n++
	return s
}

// Line returns the next sample in wire format, newline terminated.
func (g *Synthetic) Line() []byte {
	return []byte(g.Next().String() + "\n")
}

// LoadFixture reads a recorded EMG capture, one record per line. Blank lines
// are skipped; every other line is kept verbatim so malformed records in the
// capture are replayed as such.
func LoadFixture(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		lines = append(lines, append(append([]byte(nil), sc.Bytes()...), '\n'))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan fixture: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixture %s has no records", path)
	}
	return lines, nil
}

// CycleLines returns a line source that loops over lines forever.
func CycleLines(lines [][]byte) func() []byte {
	i := 0
	return func() []byte {
		l := lines[i%len(lines)]
		i++
		return l
	}
}

// PacedPort emits lines from a source at a fixed rate, standing in for the
// EMG board in dev mode. It honours read timeouts the way a real port does:
// a Read with nothing due returns (0, nil) once the timeout elapses.
type PacedPort struct {
	next  func() []byte
	rate  float64
	start time.Time

	mu      sync.Mutex
	emitted int
	pending []byte
	timeout time.Duration
	closed  chan struct{}
	once    sync.Once
}

// NewPacedPort paces next at rateHz lines per second.
func NewPacedPort(rateHz float64, next func() []byte) *PacedPort {
	return &PacedPort{
		next:   next,
		rate:   rateHz,
		start:  time.Now(),
		closed: make(chan struct{}),
	}
}

// Read returns the lines that have come due since the last call, waiting for
// the next one if none has.
func (p *PacedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.closed:
		return 0, serialmux.ErrPortClosed
	default:
	}

	var deadline <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for len(p.pending) == 0 {
		elapsed := time.Since(p.start).Seconds()
		due := int(elapsed*p.rate) - p.emitted
		if limit := int(p.rate); due > limit {
			// after a stall, skip ahead rather than replay a backlog
			p.emitted += due - limit
			due = limit
		}
		if due > 0 {
			for i := 0; i < due; i++ {
				p.pending = append(p.pending, p.next()...)
			}
			p.emitted += due
			break
		}

		wait := time.Duration((float64(p.emitted+1)/p.rate - elapsed) * float64(time.Second))
		select {
		case <-p.closed:
			return 0, serialmux.ErrPortClosed
		case <-deadline:
			return 0, nil
		case <-time.After(wait):
		}
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Write discards data; the EMG board takes no commands.
func (p *PacedPort) Write(b []byte) (int, error) { return len(b), nil }

// SetReadTimeout implements serialmux.TimeoutSerialPorter.
func (p *PacedPort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
	return nil
}

// Close unblocks any pending Read.
func (p *PacedPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
