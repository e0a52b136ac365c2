package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/emgfes/internal/security"
)

// ErrPath is returned for session paths outside the sessions directory or
// without a .csv extension.
var ErrPath = errors.New("invalid session path")

// DefaultFilename names a session file after the time it was saved.
func DefaultFilename(t time.Time) string {
	return "session-" + t.Format("20060102-150405") + ".csv"
}

// ResolvePath returns the path of the session file name inside dir. An
// empty name becomes DefaultFilename(now); a name without an extension
// gets .csv. Bare file names are sanitized.
func ResolvePath(dir, name string, now time.Time) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultFilename(now)
	}
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
	case "":
		name += ".csv"
	default:
		return "", fmt.Errorf("%w: %q is not a .csv file", ErrPath, name)
	}

	path := name
	if !filepath.IsAbs(path) {
		if filepath.Base(name) == name {
			name = security.SanitizeFilename(strings.TrimSuffix(name, filepath.Ext(name))) + ".csv"
		}
		path = filepath.Join(dir, name)
	}
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPath, err)
	}
	return filepath.Clean(path), nil
}
