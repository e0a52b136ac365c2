package classifier

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emgfes/internal/config"
	"github.com/banshee-data/emgfes/internal/dsp"
)

// fixedModel returns canned scores and records the shape it was given.
type fixedModel struct {
	scores []float32
	err    error
	shape  []int
	input  []float32
}

func (m *fixedModel) Predict(_ context.Context, input []float32, shape []int) ([]float32, error) {
	m.shape = shape
	m.input = input
	return m.scores, m.err
}

func (m *fixedModel) Close() error { return nil }

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(config.DefaultClassNames, config.DefaultIdleClass)
	require.NoError(t, err)
	return table
}

func window(samples, channels int) dsp.Conditioned {
	w := make(dsp.Conditioned, samples)
	for i := range w {
		w[i] = make([]float32, channels)
		for ch := range w[i] {
			w[i][ch] = float32(i*channels + ch)
		}
	}
	return w
}

func TestTable(t *testing.T) {
	t.Parallel()

	table := defaultTable(t)
	require.Equal(t, 5, table.Len())

	for i, name := range []string{"Índice", "Middle", "Anular", "Meñique", "Nada"} {
		l, err := table.At(i)
		require.NoError(t, err)
		assert.Equal(t, name, l.Name)
		assert.Equal(t, i, l.Index)
		assert.Equal(t, name == "Nada", l.Idle)
	}
	_, err := table.At(5)
	assert.Error(t, err)

	l, ok := table.Lookup("Anular")
	assert.True(t, ok)
	assert.Equal(t, 2, l.Index)

	_, err = NewTable([]string{"a", "b"}, "c")
	assert.Error(t, err)
	_, err = NewTable([]string{"a", "a"}, "a")
	assert.Error(t, err)
}

func TestClassifyFlattensTimeMajor(t *testing.T) {
	t.Parallel()

	m := &fixedModel{scores: []float32{0.1, 0.2, 0.5, 0.1, 0.1}}
	c := New(m, defaultTable(t), 375, 5)

	res, err := c.Classify(context.Background(), window(375, 5))
	require.NoError(t, err)
	assert.Equal(t, "Anular", res.Label.Name)
	assert.Equal(t, []int{1, 375, 5}, m.shape)
	require.Len(t, m.input, 375*5)
	for i, v := range m.input[:20] {
		assert.Equal(t, float32(i), v, "input[%d]", i)
	}
}

func TestClassifyAlwaysYieldsATableLabel(t *testing.T) {
	t.Parallel()

	table := defaultTable(t)
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name   string
		scores []float32
		want   int
	}{
		{"clear winner", []float32{0, 0, 0, 0, 1}, 4},
		{"tie picks first", []float32{0.3, 0.3, 0.3, 0.05, 0.05}, 0},
		{"nan never wins", []float32{nan, 0.1, nan, 0.2, nan}, 3},
		{"negative logits", []float32{-3, -1, -2, -5, -4}, 1},
		{"infinity", []float32{0, inf, 0, 0, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fixedModel{scores: tt.scores}, table, 375, 5)
			res, err := c.Classify(context.Background(), window(375, 5))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Label.Index)
			assert.GreaterOrEqual(t, res.Label.Index, 0)
			assert.Less(t, res.Label.Index, 5)
			assert.Equal(t, config.DefaultClassNames[tt.want], res.Label.Name)
		})
	}
}

func TestClassifyModelErrors(t *testing.T) {
	t.Parallel()

	table := defaultTable(t)
	nan := float32(math.NaN())
	tests := []struct {
		name  string
		model *fixedModel
		w     dsp.Conditioned
	}{
		{"model failure", &fixedModel{err: errors.New("boom")}, window(375, 5)},
		{"short output", &fixedModel{scores: []float32{1, 2, 3}}, window(375, 5)},
		{"long output", &fixedModel{scores: make([]float32, 6)}, window(375, 5)},
		{"all nan", &fixedModel{scores: []float32{nan, nan, nan, nan, nan}}, window(375, 5)},
		{"wrong window length", &fixedModel{scores: make([]float32, 5)}, window(300, 5)},
		{"wrong channel count", &fixedModel{scores: make([]float32, 5)}, window(375, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.model, table, 375, 5)
			_, err := c.Classify(context.Background(), tt.w)
			assert.ErrorIs(t, err, ErrModel)
		})
	}
}

func TestArgmax(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, argmax(nil))
	assert.Equal(t, 2, argmax([]float32{1, 2, 3, 3}))
}
