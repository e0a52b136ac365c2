// Package classifier maps a conditioned EMG window to a movement class using
// a pretrained model.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/emgfes/internal/dsp"
)

// ErrModel wraps every failure to obtain a usable prediction: the model call
// failed, the input did not fit, or the output was not a score per class.
var ErrModel = errors.New("model error")

// Model is a pretrained network. Predict receives the input flattened in
// row-major order for the given shape and returns one score per class.
type Model interface {
	Predict(ctx context.Context, input []float32, shape []int) ([]float32, error)
	Close() error
}

// Result is one classification.
type Result struct {
	Label  Label     `json:"label"`
	Scores []float32 `json:"scores"`
}

// Classifier feeds windows of a fixed shape to a model.
type Classifier struct {
	model    Model
	table    *Table
	samples  int
	channels int
}

// New returns a Classifier for windows of samples x channels.
func New(model Model, table *Table, samples, channels int) *Classifier {
	return &Classifier{model: model, table: table, samples: samples, channels: channels}
}

// Table returns the class table.
func (c *Classifier) Table() *Table { return c.table }

// Classify runs w through the model as a batch of one, shaped
// (1, samples, channels), and returns the highest scoring class.
func (c *Classifier) Classify(ctx context.Context, w dsp.Conditioned) (Result, error) {
	if len(w) != c.samples {
		return Result{}, fmt.Errorf("%w: window has %d samples, model takes %d", ErrModel, len(w), c.samples)
	}
	input := make([]float32, 0, c.samples*c.channels)
	for i, row := range w {
		if len(row) != c.channels {
			return Result{}, fmt.Errorf("%w: sample %d has %d channels, model takes %d", ErrModel, i, len(row), c.channels)
		}
		input = append(input, row...)
	}

	scores, err := c.model.Predict(ctx, input, []int{1, c.samples, c.channels})
	if err != nil {
		if errors.Is(err, ErrModel) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrModel, err)
	}
	if len(scores) != c.table.Len() {
		return Result{}, fmt.Errorf("%w: %d scores for %d classes", ErrModel, len(scores), c.table.Len())
	}

	idx := argmax(scores)
	if idx < 0 {
		return Result{}, fmt.Errorf("%w: no finite score in %v", ErrModel, scores)
	}
	label, err := c.table.At(idx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrModel, err)
	}
	return Result{Label: label, Scores: scores}, nil
}

// Close releases the model.
func (c *Classifier) Close() error { return c.model.Close() }

// argmax returns the index of the first maximum, skipping NaN. It returns -1
// when every score is NaN.
func argmax(scores []float32) int {
	best := -1
	for i, v := range scores {
		if math.IsNaN(float64(v)) {
			continue
		}
		if best < 0 || v > scores[best] {
			best = i
		}
	}
	return best
}
