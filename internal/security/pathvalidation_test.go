package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	sessions := filepath.Join(dir, "sessions")
	if err := os.Mkdir(sessions, 0o755); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(dir, "outside")
	if err := os.Mkdir(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(sessions, "escape")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(sessions, "a.csv"), false},
		{"nested new file", filepath.Join(sessions, "2026", "a.csv"), false},
		{"dir itself", sessions, false},
		{"dot dot", filepath.Join(sessions, "..", "a.csv"), true},
		{"sibling", filepath.Join(outside, "a.csv"), true},
		{"through symlink", filepath.Join(sessions, "escape", "a.csv"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, sessions)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if err := ValidatePathWithinDirectory(filepath.Join(missing, "a.csv"), missing); err == nil {
		t.Error("expected error for a directory that does not exist")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"session-1", "session-1"},
		{"../../etc/passwd", "etc_passwd"},
		{"Índice y Meñique", "ndice_y_Me_ique"},
		{"a   b", "a_b"},
		{"", "unknown"},
		{"...", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if got := SanitizeFilename(string(long)); len(got) != 128 {
		t.Errorf("len(SanitizeFilename(300 x)) = %d, want 128", len(got))
	}
}
