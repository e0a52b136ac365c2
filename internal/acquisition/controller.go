package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/config"
	"github.com/banshee-data/emgfes/internal/dsp"
	"github.com/banshee-data/emgfes/internal/emg"
	"github.com/banshee-data/emgfes/internal/monitoring"
	"github.com/banshee-data/emgfes/internal/session"
	"github.com/banshee-data/emgfes/internal/timeutil"
)

// SampleSource yields one sample per call. emg.Reader is the production
// implementation; every call must return within the port read timeout.
type SampleSource interface {
	ReadSample() (emg.Sample, error)
}

// WindowConditioner filters a raw window. dsp.Conditioner implements it.
type WindowConditioner interface {
	Condition(emg.Window) (dsp.Conditioned, error)
}

// WindowClassifier labels a conditioned window. classifier.Classifier
// implements it.
type WindowClassifier interface {
	Classify(context.Context, dsp.Conditioned) (classifier.Result, error)
}

// Actuator drives the stimulator. fes.Dispatcher implements it.
type Actuator interface {
	Dispatch(classifier.Label) (bool, error)
}

// WindowObserver is told about every classified window, on the worker
// goroutine. It must return quickly.
type WindowObserver func(raw emg.Window, conditioned dsp.Conditioned, res classifier.Result)

// Config wires a Controller. Table, Clock, Hub and Observer are optional.
type Config struct {
	Pipeline    config.Pipeline
	Source      SampleSource
	Conditioner WindowConditioner
	Classifier  WindowClassifier
	Actuator    Actuator
	Recorder    *session.Recorder
	Table       *classifier.Table
	Hub         *Hub
	Clock       timeutil.Clock
	Observer    WindowObserver
}

// Status is a point-in-time view of the controller for displays.
type Status struct {
	State      State             `json:"state"`
	Replaying  bool              `json:"replaying"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	LastLabel  *classifier.Label `json:"last_label,omitempty"`
	LastScores []float32         `json:"last_scores,omitempty"`
	Records    int               `json:"records"`
	Stats      Stats             `json:"stats"`
}

// Controller owns the acquisition worker and the session commands that are
// only allowed while it is not running.
type Controller struct {
	cfg      Config
	replayer *session.Replayer
	stats    counters

	malformedLog *monitoring.Throttle
	noDataLog    *monitoring.Throttle
	stageLog     *monitoring.Throttle

	// runMu serialises lifecycle commands; mu guards the fields below it.
	runMu sync.Mutex

	mu           sync.Mutex
	state        State
	startedAt    time.Time
	cancel       context.CancelFunc
	done         chan struct{}
	replaying    bool
	replayCancel context.CancelFunc
	replayDone   chan struct{}
	last         *classifier.Result
}

// NewController returns an idle controller.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Pipeline.EventBuffer)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = session.NewRecorder(cfg.Pipeline.Channels)
	}
	interval := cfg.Pipeline.MalformedLogInterval
	return &Controller{
		cfg:          cfg,
		replayer:     session.NewReplayer(cfg.Clock, cfg.Pipeline.ReplayInterval),
		malformedLog: monitoring.NewThrottleWithClock(interval, cfg.Clock.Now),
		noDataLog:    monitoring.NewThrottleWithClock(interval, cfg.Clock.Now),
		stageLog:     monitoring.NewThrottleWithClock(interval, cfg.Clock.Now),
		state:        StateIdle,
	}
}

// Hub returns the event hub displays subscribe to.
func (c *Controller) Hub() *Hub { return c.cfg.Hub }

// Recorder returns the session recorder.
func (c *Controller) Recorder() *session.Recorder { return c.cfg.Recorder }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns the loop counters.
func (c *Controller) Stats() Stats { return c.stats.snapshot() }

// Status returns a snapshot for displays.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := Status{State: c.state, Replaying: c.replaying}
	if c.state == StateRunning {
		t := c.startedAt
		s.StartedAt = &t
	}
	if c.last != nil {
		l := c.last.Label
		s.LastLabel = &l
		s.LastScores = append([]float32(nil), c.last.Scores...)
	}
	c.mu.Unlock()

	s.Records = c.cfg.Recorder.Len()
	s.Stats = c.stats.snapshot()
	return s
}

// Start launches the acquisition worker. confirmed is the operator's answer
// to the start prompt; an unconfirmed start does nothing.
func (c *Controller) Start(confirmed bool) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	switch {
	case c.state == StateRunning:
		c.mu.Unlock()
		return ErrAlreadyRunning
	case c.replaying:
		c.mu.Unlock()
		return fmt.Errorf("%w: replay in progress", ErrBusy)
	case !confirmed:
		c.mu.Unlock()
		return ErrNotConfirmed
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.state = StateRunning
	c.startedAt = c.cfg.Clock.Now()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, done)

	monitoring.Logf("acquisition: started (%d samples x %d channels per window)",
		c.cfg.Pipeline.SamplesPerWindow, c.cfg.Pipeline.Channels)
	c.publishState(StateRunning, "recording")
	return nil
}

// Stop asks the worker to finish and waits for it. The worker notices at
// its next iteration boundary, which a blocked read reaches within one
// read timeout.
func (c *Controller) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.state = StateStopped
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	monitoring.Logf("acquisition: stopped with %d unsaved records", c.cfg.Recorder.Len())
	c.publishState(StateStopped, "session stopped")
	return nil
}

// checkIdle returns ErrBusy while the worker or a replay is active. Callers
// hold runMu.
func (c *Controller) checkIdle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		return fmt.Errorf("%w: acquisition running", ErrBusy)
	}
	if c.replaying {
		return fmt.Errorf("%w: replay in progress", ErrBusy)
	}
	return nil
}

// Save writes the recorded session to path and returns the saved records.
func (c *Controller) Save(path string) ([]session.Record, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if err := c.checkIdle(); err != nil {
		return nil, err
	}
	records, err := c.cfg.Recorder.Save(path)
	if err != nil {
		return nil, err
	}
	c.publishState(c.State(), fmt.Sprintf("session saved (%d records)", len(records)))
	return records, nil
}

// Discard drops the recorded session.
func (c *Controller) Discard() (int, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if err := c.checkIdle(); err != nil {
		return 0, err
	}
	n := c.cfg.Recorder.Discard()
	c.publishState(c.State(), fmt.Sprintf("session discarded (%d records)", n))
	return n, nil
}

// Replay publishes labels as replay events, one per replay interval, on a
// background goroutine. Only one replay runs at a time and never while
// acquisition is running. Replay never touches the actuator.
func (c *Controller) Replay(labels []string) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if err := c.checkIdle(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.replaying = true
	c.replayCancel = cancel
	c.replayDone = done
	c.mu.Unlock()

	c.publishState(c.State(), fmt.Sprintf("replaying %d labels", len(labels)))
	go c.replay(ctx, done, labels)
	return nil
}

func (c *Controller) replay(ctx context.Context, done chan struct{}, labels []string) {
	defer close(done)

	err := c.replayer.Replay(ctx, labels, func(i int, name string) {
		e := Event{Kind: EventReplay, Time: c.cfg.Clock.Now(), Name: name, Index: i, Total: len(labels)}
		if c.cfg.Table != nil {
			if l, ok := c.cfg.Table.Lookup(name); ok {
				e.Label = &l
			}
		}
		c.cfg.Hub.Publish(e)
	})

	c.mu.Lock()
	c.replaying = false
	c.replayCancel, c.replayDone = nil, nil
	c.mu.Unlock()

	msg := "replay finished"
	if err != nil {
		msg = "replay cancelled"
	}
	c.publishState(c.State(), msg)
}

// CancelReplay stops an active replay and waits for it to end.
func (c *Controller) CancelReplay() error {
	c.mu.Lock()
	cancel, done := c.replayCancel, c.replayDone
	c.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	<-done
	return nil
}

// Close stops acquisition and any replay.
func (c *Controller) Close() {
	if err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		monitoring.Logf("acquisition: stop on close: %v", err)
	}
	_ = c.CancelReplay()
}

func (c *Controller) publishState(s State, msg string) {
	c.cfg.Hub.Publish(Event{Kind: EventState, Time: c.cfg.Clock.Now(), State: s, Message: msg})
}
