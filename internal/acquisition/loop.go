package acquisition

import (
	"context"
	"errors"

	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/emg"
	"github.com/banshee-data/emgfes/internal/monitoring"
	"github.com/banshee-data/emgfes/internal/session"
)

// run is the worker goroutine. It never returns an error: every failure is
// absorbed at the iteration boundary and counted.
func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	buf := emg.NewWindowBuffer(c.cfg.Pipeline.SamplesPerWindow)
	for ctx.Err() == nil {
		c.iterate(ctx, buf)
	}
}

// iterate handles one sample, and one window when the sample completes it.
func (c *Controller) iterate(ctx context.Context, buf *emg.WindowBuffer) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.panics.Add(1)
			buf.Reset()
			monitoring.Logf("acquisition: recovered panic, window dropped: %v", r)
		}
	}()

	s, err := c.cfg.Source.ReadSample()
	switch {
	case errors.Is(err, emg.ErrMalformed):
		c.stats.malformed.Add(1)
		c.malformedLog.Logf("acquisition: skipping record: %v", err)
		return
	case err != nil:
		c.stats.noData.Add(1)
		c.noDataLog.Logf("acquisition: no data: %v", err)
		return
	}
	// a read that completes after Stop must not produce a classification
	if ctx.Err() != nil {
		return
	}

	c.stats.samples.Add(1)
	buf.Push(s)
	if !buf.IsFull() {
		return
	}

	w := buf.Drain()
	c.stats.windows.Add(1)

	cond, err := c.cfg.Conditioner.Condition(w)
	if err != nil {
		c.stats.shapeErrors.Add(1)
		c.stageLog.Logf("acquisition: window dropped: %v", err)
		return
	}
	res, err := c.cfg.Classifier.Classify(ctx, cond)
	if err != nil {
		c.stats.modelErrors.Add(1)
		c.stageLog.Logf("acquisition: window dropped: %v", err)
		return
	}
	c.stats.classified.Add(1)
	c.publishLabel(res)

	if c.cfg.Observer != nil {
		c.cfg.Observer(w, cond, res)
	}

	sent, err := c.cfg.Actuator.Dispatch(res.Label)
	if err != nil {
		c.stats.dispatchError.Add(1)
		c.stageLog.Logf("acquisition: %v", err)
	} else if sent {
		c.stats.dispatches.Add(1)
	}

	c.cfg.Recorder.Append(session.NewRecord(c.cfg.Clock.Now(), w.Last(), res.Label))
}

func (c *Controller) publishLabel(res classifier.Result) {
	c.mu.Lock()
	c.last = &res
	c.mu.Unlock()

	l := res.Label
	c.cfg.Hub.Publish(Event{
		Kind:   EventLabel,
		Time:   c.cfg.Clock.Now(),
		Label:  &l,
		Scores: res.Scores,
		Name:   l.Name,
		Index:  l.Index,
	})
}
