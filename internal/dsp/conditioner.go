package dsp

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/emgfes/internal/config"
	"github.com/banshee-data/emgfes/internal/emg"
)

// ErrShape is returned for a window that does not match the configured
// sample and channel counts.
var ErrShape = errors.New("window shape mismatch")

// Conditioned is a filtered window, time-major: [sample][channel].
type Conditioned [][]float32

// stage is one zero-phase filter with its precomputed steady state.
type stage struct {
	name   string
	coeffs Coeffs
	zi     []float64
}

// Conditioner removes each channel's offset, notches out powerline
// interference and band-limits the window. It holds only the designed
// coefficients, so one Conditioner may be shared between goroutines.
type Conditioner struct {
	samples  int
	channels int
	stages   []stage
}

// NewConditioner designs the filters for p: one notch per entry of
// p.NotchFreqsHz, in order, followed by the band-pass.
func NewConditioner(p config.Pipeline) (*Conditioner, error) {
	c := &Conditioner{samples: p.SamplesPerWindow, channels: p.Channels}

	for _, f0 := range p.NotchFreqsHz {
		coeffs, err := Notch(f0, p.NotchQ, p.SampleRateHz)
		if err != nil {
			return nil, err
		}
		if err := c.addStage(fmt.Sprintf("notch %gHz", f0), coeffs); err != nil {
			return nil, err
		}
	}

	band, err := ButterBandpass(p.BandOrder, p.BandLowHz, p.BandHighHz, p.SampleRateHz)
	if err != nil {
		return nil, err
	}
	if err := c.addStage(fmt.Sprintf("band-pass %g-%gHz", p.BandLowHz, p.BandHighHz), band); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conditioner) addStage(name string, coeffs Coeffs) error {
	if pad := PadLen(coeffs); c.samples <= pad {
		return fmt.Errorf("%w: %s needs windows longer than %d samples, have %d", ErrDesign, name, pad, c.samples)
	}
	zi, err := LFilterZI(coeffs)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	c.stages = append(c.stages, stage{name: name, coeffs: coeffs, zi: zi})
	return nil
}

// Stages lists the filter stages in the order they are applied.
func (c *Conditioner) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.name
	}
	return names
}

// Condition filters each channel of w independently. The result has the
// same shape as w; values are rounded to float32 after every stage.
func (c *Conditioner) Condition(w emg.Window) (Conditioned, error) {
	if len(w) != c.samples {
		return nil, fmt.Errorf("%w: %d samples, want %d", ErrShape, len(w), c.samples)
	}
	for i, s := range w {
		if len(s) != c.channels {
			return nil, fmt.Errorf("%w: sample %d has %d channels, want %d", ErrShape, i, len(s), c.channels)
		}
	}

	out := make(Conditioned, c.samples)
	flat := make([]float32, c.samples*c.channels)
	for i := range out {
		out[i] = flat[i*c.channels : (i+1)*c.channels]
	}

	col := make([]float64, c.samples)
	for ch := 0; ch < c.channels; ch++ {
		for i, s := range w {
			col[i] = float64(s[ch])
		}
		floats.AddConst(-floats.Sum(col)/float64(len(col)), col)
		round32(col)

		x := col
		for _, st := range c.stages {
			y, err := FiltFilt(st.coeffs, x, st.zi)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", st.name, err)
			}
			round32(y)
			x = y
		}
		for i, v := range x {
			out[i][ch] = float32(v)
		}
	}
	return out, nil
}

func round32(x []float64) {
	for i, v := range x {
		x[i] = float64(float32(v))
	}
}
