package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// DenseFormat identifies the JSON dense-network artifact.
const DenseFormat = "emgfes-dense/v1"

// Input transforms applied before the first dense layer.
const (
	// TransformNone feeds the flattened (samples x channels) window as is.
	TransformNone = ""
	// TransformRMS reduces each channel to its root mean square.
	TransformRMS = "rms"
)

// DenseArtifact is the on-disk form of a feed-forward network. Weights are
// stored inputs x outputs, the layout Keras exports.
type DenseArtifact struct {
	Format     string       `json:"format"`
	InputShape []int        `json:"input_shape"` // [samples, channels]
	Transform  string       `json:"transform,omitempty"`
	Layers     []DenseLayer `json:"layers"`
}

// DenseLayer is one fully connected layer.
type DenseLayer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"` // relu, tanh, sigmoid, linear or softmax
}

// Save writes the artifact as JSON, replacing path atomically.
func (a DenseArtifact) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dense-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type denseLayer struct {
	w   *mat.Dense // in x out
	b   *mat.VecDense
	act string
}

// DenseModel evaluates a DenseArtifact in process.
type DenseModel struct {
	samples   int
	channels  int
	transform string
	layers    []denseLayer
}

// LoadDense reads and validates a dense artifact.
func LoadDense(path string) (*DenseModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var a DenseArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return NewDenseModel(a)
}

// NewDenseModel checks that the layer shapes chain together and builds the
// model.
func NewDenseModel(a DenseArtifact) (*DenseModel, error) {
	if a.Format != DenseFormat {
		return nil, fmt.Errorf("unsupported model format %q, want %q", a.Format, DenseFormat)
	}
	if len(a.InputShape) != 2 || a.InputShape[0] < 1 || a.InputShape[1] < 1 {
		return nil, fmt.Errorf("input_shape %v must be [samples, channels]", a.InputShape)
	}
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("model has no layers")
	}

	m := &DenseModel{samples: a.InputShape[0], channels: a.InputShape[1], transform: a.Transform}
	var width int
	switch a.Transform {
	case TransformNone:
		width = m.samples * m.channels
	case TransformRMS:
		width = m.channels
	default:
		return nil, fmt.Errorf("unknown input transform %q", a.Transform)
	}

	for i, l := range a.Layers {
		switch l.Activation {
		case "relu", "tanh", "sigmoid", "linear", "softmax":
		default:
			return nil, fmt.Errorf("layer %d: unknown activation %q", i, l.Activation)
		}
		if len(l.Weights) != width {
			return nil, fmt.Errorf("layer %d: %d weight rows, want %d", i, len(l.Weights), width)
		}
		out := len(l.Bias)
		if out == 0 {
			return nil, fmt.Errorf("layer %d: empty bias", i)
		}
		w := mat.NewDense(width, out, nil)
		for r, row := range l.Weights {
			if len(row) != out {
				return nil, fmt.Errorf("layer %d: weight row %d has %d columns, want %d", i, r, len(row), out)
			}
			w.SetRow(r, row)
		}
		m.layers = append(m.layers, denseLayer{
			w:   w,
			b:   mat.NewVecDense(out, append([]float64(nil), l.Bias...)),
			act: l.Activation,
		})
		width = out
	}
	return m, nil
}

// Outputs is the width of the final layer.
func (m *DenseModel) Outputs() int {
	_, c := m.layers[len(m.layers)-1].w.Dims()
	return c
}

// Predict implements Model.
func (m *DenseModel) Predict(ctx context.Context, input []float32, shape []int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(shape) != 3 || shape[0] != 1 || shape[1] != m.samples || shape[2] != m.channels {
		return nil, fmt.Errorf("%w: input shape %v, model takes [1 %d %d]", ErrModel, shape, m.samples, m.channels)
	}
	if len(input) != m.samples*m.channels {
		return nil, fmt.Errorf("%w: %d input values for shape %v", ErrModel, len(input), shape)
	}

	var x *mat.VecDense
	switch m.transform {
	case TransformRMS:
		x = mat.NewVecDense(m.channels, nil)
		for ch := 0; ch < m.channels; ch++ {
			var sum float64
			for t := 0; t < m.samples; t++ {
				v := float64(input[t*m.channels+ch])
				sum += v * v
			}
			x.SetVec(ch, math.Sqrt(sum/float64(m.samples)))
		}
	default:
		x = mat.NewVecDense(len(input), nil)
		for i, v := range input {
			x.SetVec(i, float64(v))
		}
	}

	for _, l := range m.layers {
		_, out := l.w.Dims()
		y := mat.NewVecDense(out, nil)
		y.MulVec(l.w.T(), x)
		y.AddVec(y, l.b)
		activate(l.act, y.RawVector().Data)
		x = y
	}

	scores := make([]float32, x.Len())
	for i := range scores {
		scores[i] = float32(x.AtVec(i))
	}
	return scores, nil
}

// Close implements Model.
func (m *DenseModel) Close() error { return nil }

func activate(name string, v []float64) {
	switch name {
	case "relu":
		for i, x := range v {
			v[i] = math.Max(0, x)
		}
	case "tanh":
		for i, x := range v {
			v[i] = math.Tanh(x)
		}
	case "sigmoid":
		for i, x := range v {
			v[i] = 1 / (1 + math.Exp(-x))
		}
	case "softmax":
		hi := math.Inf(-1)
		for _, x := range v {
			hi = math.Max(hi, x)
		}
		var sum float64
		for i, x := range v {
			v[i] = math.Exp(x - hi)
			sum += v[i]
		}
		for i := range v {
			v[i] /= sum
		}
	}
}

// RMSArtifact builds a single-layer model that scores class i by the RMS of
// channel i against a fixed threshold for the idle class. It needs no
// training and is what dev mode and the fixture tool ship with. classes must
// be channels+1 or fewer; the idle class is idleIndex.
func RMSArtifact(samples, channels, classes, idleIndex int, threshold float64) DenseArtifact {
	weights := make([][]float64, channels)
	for ch := range weights {
		weights[ch] = make([]float64, classes)
	}
	bias := make([]float64, classes)

	class := 0
	for ch := 0; ch < channels && class < classes; ch++ {
		if class == idleIndex {
			class++
		}
		if class >= classes {
			break
		}
		// scaled so typical bursts separate clearly after the softmax
		weights[ch][class] = 0.1
		class++
	}
	bias[idleIndex] = 0.1 * threshold

	return DenseArtifact{
		Format:     DenseFormat,
		InputShape: []int{samples, channels},
		Transform:  TransformRMS,
		Layers:     []DenseLayer{{Weights: weights, Bias: bias, Activation: "softmax"}},
	}
}
