package config

import (
	"fmt"
	"time"
)

// Pipeline is the resolved, immutable acquisition configuration. It is built
// once at process start and handed to every pipeline component.
type Pipeline struct {
	SampleRateHz     float64
	WindowMs         int
	Channels         int
	SamplesPerWindow int
	ReadTimeout      time.Duration

	ClassNames []string
	IdleClass  string

	NotchFreqsHz []float64
	NotchQ       float64
	BandLowHz    float64
	BandHighHz   float64
	BandOrder    int

	EMGBaud     int
	FESBaud     int
	SettleDelay time.Duration

	ReplayInterval       time.Duration
	MalformedLogInterval time.Duration
	EventBuffer          int

	WorkerCommand []string
	WorkerTimeout time.Duration
}

// Pipeline resolves the file into a Pipeline, applying defaults and checking
// the cross-field constraints that a single field cannot express.
func (c *File) Pipeline() (Pipeline, error) {
	if err := c.Validate(); err != nil {
		return Pipeline{}, err
	}

	p := Pipeline{
		SampleRateHz:         c.GetSampleRateHz(),
		WindowMs:             c.GetWindowMs(),
		Channels:             c.GetChannels(),
		ReadTimeout:          c.GetReadTimeout(),
		ClassNames:           c.GetClassNames(),
		IdleClass:            c.GetIdleClass(),
		NotchFreqsHz:         c.GetNotchFreqsHz(),
		NotchQ:               c.GetNotchQ(),
		BandLowHz:            c.GetBandLowHz(),
		BandHighHz:           c.GetBandHighHz(),
		BandOrder:            c.GetBandOrder(),
		EMGBaud:              c.GetEMGBaud(),
		FESBaud:              c.GetFESBaud(),
		SettleDelay:          c.GetSettleDelay(),
		ReplayInterval:       c.GetReplayInterval(),
		MalformedLogInterval: c.GetMalformedLogInterval(),
		EventBuffer:          c.GetEventBuffer(),
		WorkerCommand:        c.GetWorkerCommand(),
		WorkerTimeout:        c.GetWorkerTimeout(),
	}
	// Truncation matches how the training windows were cut.
	p.SamplesPerWindow = int(float64(p.WindowMs) / 1000 * p.SampleRateHz)

	if p.SamplesPerWindow < 1 {
		return Pipeline{}, fmt.Errorf("window of %dms at %.1fHz holds no samples", p.WindowMs, p.SampleRateHz)
	}
	nyquist := p.SampleRateHz / 2
	if p.BandLowHz <= 0 || p.BandLowHz >= p.BandHighHz || p.BandHighHz >= nyquist {
		return Pipeline{}, fmt.Errorf("band-pass [%.1f, %.1f]Hz must satisfy 0 < low < high < %.1f", p.BandLowHz, p.BandHighHz, nyquist)
	}
	for _, f := range p.NotchFreqsHz {
		if f <= 0 || f >= nyquist {
			return Pipeline{}, fmt.Errorf("notch at %.1fHz outside (0, %.1f)", f, nyquist)
		}
	}
	idle := -1
	seen := make(map[string]bool, len(p.ClassNames))
	for i, name := range p.ClassNames {
		if name == "" {
			return Pipeline{}, fmt.Errorf("class %d has an empty name", i)
		}
		if seen[name] {
			return Pipeline{}, fmt.Errorf("duplicate class name %q", name)
		}
		seen[name] = true
		if name == p.IdleClass {
			idle = i
		}
	}
	if idle < 0 {
		return Pipeline{}, fmt.Errorf("idle class %q not in class names %v", p.IdleClass, p.ClassNames)
	}
	return p, nil
}

// DefaultPipeline returns the resolved built-in defaults: 750Hz, 500ms
// windows of 5 channels, 60/50Hz notches and a 20-374Hz band-pass.
func DefaultPipeline() Pipeline {
	p, err := EmptyFile().Pipeline()
	if err != nil {
		panic("built-in pipeline defaults are invalid: " + err.Error())
	}
	return p
}

// WindowDuration is the wall-clock span of one window.
func (p Pipeline) WindowDuration() time.Duration {
	return time.Duration(p.WindowMs) * time.Millisecond
}
