package classifier

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenseModelForward(t *testing.T) {
	t.Parallel()

	// two samples of two channels flattened to four inputs
	a := DenseArtifact{
		Format:     DenseFormat,
		InputShape: []int{2, 2},
		Layers: []DenseLayer{
			{
				Weights:    [][]float64{{1, -1}, {0, 0}, {0, 0}, {1, 1}},
				Bias:       []float64{0, 0.5},
				Activation: "relu",
			},
			{
				Weights:    [][]float64{{2, 0, 0}, {0, 1, 0}},
				Bias:       []float64{0, 0, 1},
				Activation: "linear",
			},
		},
	}
	m, err := NewDenseModel(a)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Outputs())

	// hidden = relu([x0+x3, -x0+x3+0.5]) = relu([3, 1.5]) = [3, 1.5]
	scores, err := m.Predict(context.Background(), []float32{1, 9, 9, 2}, []int{1, 2, 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{6, 1.5, 1}, scores, 1e-6)

	_, err = m.Predict(context.Background(), []float32{1, 2, 3}, []int{1, 2, 2})
	assert.ErrorIs(t, err, ErrModel)
	_, err = m.Predict(context.Background(), []float32{1, 2, 3, 4}, []int{1, 4, 1})
	assert.ErrorIs(t, err, ErrModel)
}

func TestDenseModelSoftmax(t *testing.T) {
	t.Parallel()

	m, err := NewDenseModel(DenseArtifact{
		Format:     DenseFormat,
		InputShape: []int{1, 1},
		Layers: []DenseLayer{{
			Weights:    [][]float64{{1, 2, 3}},
			Bias:       []float64{0, 0, 0},
			Activation: "softmax",
		}},
	})
	require.NoError(t, err)

	scores, err := m.Predict(context.Background(), []float32{1000}, []int{1, 1, 1})
	require.NoError(t, err)
	var sum float64
	for _, s := range scores {
		require.False(t, math.IsNaN(float64(s)), "softmax overflowed: %v", scores)
		sum += float64(s)
	}
	assert.InDelta(t, 1, sum, 1e-6)
	assert.Equal(t, 2, argmax(scores))
}

func TestNewDenseModelRejectsBadArtifacts(t *testing.T) {
	t.Parallel()

	good := func() DenseArtifact {
		return DenseArtifact{
			Format:     DenseFormat,
			InputShape: []int{1, 2},
			Layers:     []DenseLayer{{Weights: [][]float64{{1}, {1}}, Bias: []float64{0}, Activation: "linear"}},
		}
	}
	_, err := NewDenseModel(good())
	require.NoError(t, err)

	tests := map[string]func(*DenseArtifact){
		"format":        func(a *DenseArtifact) { a.Format = "keras" },
		"input shape":   func(a *DenseArtifact) { a.InputShape = []int{2} },
		"no layers":     func(a *DenseArtifact) { a.Layers = nil },
		"activation":    func(a *DenseArtifact) { a.Layers[0].Activation = "gelu" },
		"weight rows":   func(a *DenseArtifact) { a.Layers[0].Weights = [][]float64{{1}} },
		"weight cols":   func(a *DenseArtifact) { a.Layers[0].Weights = [][]float64{{1}, {1, 2}} },
		"empty bias":    func(a *DenseArtifact) { a.Layers[0].Bias = nil },
		"transform":     func(a *DenseArtifact) { a.Transform = "fft" },
		"rms row count": func(a *DenseArtifact) { a.Transform = TransformRMS; a.InputShape = []int{1, 3} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			a := good()
			mutate(&a)
			_, err := NewDenseModel(a)
			assert.Error(t, err)
		})
	}
}

func TestRMSArtifactFollowsActiveChannel(t *testing.T) {
	t.Parallel()

	const samples, channels = 375, 5
	a := RMSArtifact(samples, channels, 5, 4, 40)
	m, err := NewDenseModel(a)
	require.NoError(t, err)

	burst := func(ch int, amp float32) []float32 {
		in := make([]float32, samples*channels)
		for i := 0; i < samples; i++ {
			v := amp
			if i%2 == 1 {
				v = -amp
			}
			in[i*channels+ch] = v
		}
		return in
	}

	for ch := 0; ch < 4; ch++ {
		scores, err := m.Predict(context.Background(), burst(ch, 200), []int{1, samples, channels})
		require.NoError(t, err)
		assert.Equal(t, ch, argmax(scores), "burst on channel %d", ch)
	}

	quiet, err := m.Predict(context.Background(), burst(0, 5), []int{1, samples, channels})
	require.NoError(t, err)
	assert.Equal(t, 4, argmax(quiet), "quiet input should be idle")
}

func TestLoadModelByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "demo.json")
	require.NoError(t, RMSArtifact(375, 5, 5, 4, 40).Save(path))

	m, err := LoadModel(path, WorkerOptions{})
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, Verify(context.Background(), m, 375, 5, 5))
	assert.Error(t, Verify(context.Background(), m, 375, 5, 4))

	_, err = LoadModel(filepath.Join(dir, "missing.json"), WorkerOptions{})
	assert.Error(t, err)

	bad := filepath.Join(dir, "model.pt")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))
	_, err = LoadModel(bad, WorkerOptions{})
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	_, err = LoadModel(broken, WorkerOptions{})
	assert.Error(t, err)
}
