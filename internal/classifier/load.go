package classifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadModel opens the artifact at path, choosing the runtime by extension:
// .json is evaluated in process, .h5, .keras and .onnx go to an external
// worker started with opts.
func LoadModel(path string, opts WorkerOptions) (Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return LoadDense(path)
	case ".h5", ".keras", ".onnx":
		return StartWorker(path, opts)
	default:
		return nil, fmt.Errorf("unsupported model artifact %q: want .json, .h5, .keras or .onnx", ext)
	}
}

// Verify runs one all-zero window through m and checks it answers with one
// score per class. Startup calls it so a bad artifact fails before the
// first session rather than on the first window.
func Verify(ctx context.Context, m Model, samples, channels, classes int) error {
	scores, err := m.Predict(ctx, make([]float32, samples*channels), []int{1, samples, channels})
	if err != nil {
		return fmt.Errorf("model self-test: %w", err)
	}
	if len(scores) != classes {
		return fmt.Errorf("model self-test: %d scores, want one per class (%d)", len(scores), classes)
	}
	return nil
}
