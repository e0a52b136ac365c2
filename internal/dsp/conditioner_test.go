package dsp

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emgfes/internal/config"
	"github.com/banshee-data/emgfes/internal/emg"
)

func constantWindow(n int, values ...int) emg.Window {
	w := make(emg.Window, n)
	for i := range w {
		w[i] = emg.Sample(values)
	}
	return w
}

func newDefaultConditioner(t *testing.T) *Conditioner {
	t.Helper()
	c, err := NewConditioner(config.DefaultPipeline())
	require.NoError(t, err)
	return c
}

func TestConditionerStages(t *testing.T) {
	t.Parallel()

	c := newDefaultConditioner(t)
	assert.Equal(t, []string{"notch 60Hz", "notch 50Hz", "band-pass 20-374Hz"}, c.Stages())
}

func TestConditionPreservesShape(t *testing.T) {
	t.Parallel()

	c := newDefaultConditioner(t)
	g := emg.NewSynthetic(5, 750, 0.5, 3)
	w := make(emg.Window, 375)
	for i := range w {
		w[i] = g.Next()
	}

	out, err := c.Condition(w)
	require.NoError(t, err)
	require.Len(t, out, 375)
	for i, row := range out {
		require.Len(t, row, 5, "row %d", i)
		for ch, v := range row {
			require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "out[%d][%d] = %v", i, ch, v)
		}
	}

	again, err := c.Condition(w)
	require.NoError(t, err)
	assert.Equal(t, out, again, "conditioning must be deterministic")
}

func TestConditionZeroInIsZeroOut(t *testing.T) {
	t.Parallel()

	c := newDefaultConditioner(t)
	out, err := c.Condition(constantWindow(375, 0, 0, 0, 0, 0))
	require.NoError(t, err)
	for i, row := range out {
		for ch, v := range row {
			if v != 0 {
				t.Fatalf("out[%d][%d] = %v, want 0", i, ch, v)
			}
		}
	}
}

func TestConditionRemovesOffset(t *testing.T) {
	t.Parallel()

	c := newDefaultConditioner(t)
	out, err := c.Condition(constantWindow(375, 100, 100, 100, 100, 100))
	require.NoError(t, err)
	for i, row := range out {
		for ch, v := range row {
			if math.Abs(float64(v)) > 1e-6 {
				t.Fatalf("out[%d][%d] = %v, want ~0", i, ch, v)
			}
		}
	}
}

func TestConditionChannelsAreIndependent(t *testing.T) {
	t.Parallel()

	c := newDefaultConditioner(t)
	g := emg.NewSynthetic(5, 750, 0.5, 11)
	w := make(emg.Window, 375)
	quiet := make(emg.Window, 375)
	for i := range w {
		s := g.Next()
		w[i] = s
		q := append(emg.Sample(nil), s...)
		q[4] = 512
		quiet[i] = q
	}

	a, err := c.Condition(w)
	require.NoError(t, err)
	b, err := c.Condition(quiet)
	require.NoError(t, err)
	for i := range a {
		for ch := 0; ch < 4; ch++ {
			require.Equal(t, a[i][ch], b[i][ch], "changing channel 4 altered channel %d", ch)
		}
		require.Zero(t, b[i][4])
	}
}

func TestConditionRejectsBadShape(t *testing.T) {
	t.Parallel()

	c := newDefaultConditioner(t)

	_, err := c.Condition(constantWindow(374, 1, 2, 3, 4, 5))
	assert.True(t, errors.Is(err, ErrShape), "short window: %v", err)

	w := constantWindow(375, 1, 2, 3, 4, 5)
	w[10] = emg.Sample{1, 2, 3}
	_, err = c.Condition(w)
	assert.True(t, errors.Is(err, ErrShape), "narrow sample: %v", err)
}

func TestNewConditionerRejectsTinyWindows(t *testing.T) {
	t.Parallel()

	p := config.DefaultPipeline()
	p.SamplesPerWindow = 20
	_, err := NewConditioner(p)
	assert.ErrorIs(t, err, ErrDesign)

	p = config.DefaultPipeline()
	p.NotchQ = 0
	_, err = NewConditioner(p)
	assert.ErrorIs(t, err, ErrDesign)
}
