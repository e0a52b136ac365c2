package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger used by the acquisition
// pipeline. It defaults to log.Printf but may be replaced by SetLogger so
// tests can mute or capture pipeline noise.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Throttle logs at most once per interval and counts what it suppressed in
// between. A noisy serial line produces hundreds of identical errors per
// second; the count keeps the volume visible without flooding the log.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	last       time.Time
	suppressed int
}

// NewThrottle returns a Throttle using the wall clock.
func NewThrottle(interval time.Duration) *Throttle {
	return NewThrottleWithClock(interval, time.Now)
}

// NewThrottleWithClock returns a Throttle reading time from now.
func NewThrottleWithClock(interval time.Duration, now func() time.Time) *Throttle {
	return &Throttle{interval: interval, now: now}
}

// Logf forwards to Logf when the interval has elapsed since the last emitted
// message. It reports whether the message was emitted.
func (t *Throttle) Logf(format string, v ...interface{}) bool {
	t.mu.Lock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.suppressed++
		t.mu.Unlock()
		return false
	}
	suppressed := t.suppressed
	t.suppressed = 0
	t.last = now
	t.mu.Unlock()

	if suppressed > 0 {
		Logf(format+" (%d similar suppressed)", append(v, suppressed)...)
	} else {
		Logf(format, v...)
	}
	return true
}
