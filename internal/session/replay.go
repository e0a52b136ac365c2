package session

import (
	"context"
	"time"

	"github.com/banshee-data/emgfes/internal/timeutil"
)

// Replayer steps through a recorded label stream at a fixed pace. It only
// re-derives labels; nothing it does reaches the stimulator.
type Replayer struct {
	clock    timeutil.Clock
	interval time.Duration
}

func NewReplayer(clock timeutil.Clock, interval time.Duration) *Replayer {
	return &Replayer{clock: clock, interval: interval}
}

// Replay calls emit with each label in order, waiting interval after each
// one. It returns ctx.Err() if cancelled part way.
func (r *Replayer) Replay(ctx context.Context, labels []string, emit func(i int, label string)) error {
	for i, label := range labels {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(i, label)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(r.interval):
		}
	}
	return nil
}
