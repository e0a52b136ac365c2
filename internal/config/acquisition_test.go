package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyFileDefaults(t *testing.T) {
	cfg := EmptyFile()

	if got := cfg.GetSampleRateHz(); got != 750 {
		t.Errorf("GetSampleRateHz() = %f, want 750", got)
	}
	if got := cfg.GetWindowMs(); got != 500 {
		t.Errorf("GetWindowMs() = %d, want 500", got)
	}
	if got := cfg.GetChannels(); got != 5 {
		t.Errorf("GetChannels() = %d, want 5", got)
	}
	if got := cfg.GetReadTimeout(); got != time.Second {
		t.Errorf("GetReadTimeout() = %v, want 1s", got)
	}
	if got := cfg.GetEMGBaud(); got != 2000000 {
		t.Errorf("GetEMGBaud() = %d, want 2000000", got)
	}
	if got := cfg.GetFESBaud(); got != 9600 {
		t.Errorf("GetFESBaud() = %d, want 9600", got)
	}
	if got := cfg.GetReplayInterval(); got != 300*time.Millisecond {
		t.Errorf("GetReplayInterval() = %v, want 300ms", got)
	}
	if diff := cmp.Diff(DefaultClassNames, cfg.GetClassNames()); diff != "" {
		t.Errorf("GetClassNames() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{60, 50}, cfg.GetNotchFreqsHz()); diff != "" {
		t.Errorf("GetNotchFreqsHz() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetClassNamesReturnsCopy(t *testing.T) {
	cfg := EmptyFile()
	names := cfg.GetClassNames()
	names[0] = "mutated"
	if DefaultClassNames[0] != "Índice" {
		t.Fatalf("DefaultClassNames was mutated through accessor: %v", DefaultClassNames)
	}
}

func TestDefaultPipeline(t *testing.T) {
	p := DefaultPipeline()

	if p.SamplesPerWindow != 375 {
		t.Errorf("SamplesPerWindow = %d, want 375", p.SamplesPerWindow)
	}
	if p.WindowDuration() != 500*time.Millisecond {
		t.Errorf("WindowDuration() = %v, want 500ms", p.WindowDuration())
	}
	if p.BandOrder != 4 || p.BandLowHz != 20 || p.BandHighHz != 374 {
		t.Errorf("band-pass = order %d [%f, %f], want order 4 [20, 374]", p.BandOrder, p.BandLowHz, p.BandHighHz)
	}
	if p.IdleClass != "Nada" {
		t.Errorf("IdleClass = %q, want Nada", p.IdleClass)
	}
}

func TestLoadFileJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "acq.json")

	testJSON := `{
  "sample_rate_hz": 1000,
  "window_ms": 250,
  "read_timeout": "200ms",
  "notch_freqs_hz": [50]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	p, err := cfg.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline() error: %v", err)
	}
	if p.SamplesPerWindow != 250 {
		t.Errorf("SamplesPerWindow = %d, want 250", p.SamplesPerWindow)
	}
	if p.ReadTimeout != 200*time.Millisecond {
		t.Errorf("ReadTimeout = %v, want 200ms", p.ReadTimeout)
	}
	if diff := cmp.Diff([]float64{50}, p.NotchFreqsHz); diff != "" {
		t.Errorf("NotchFreqsHz mismatch (-want +got):\n%s", diff)
	}
	// unset fields keep their defaults
	if p.Channels != 5 {
		t.Errorf("Channels = %d, want default 5", p.Channels)
	}
}

func TestLoadFileYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "acq.yaml")

	testYAML := `
channels: 4
class_names: [open, close, rest]
idle_class: rest
band_high_hz: 300
`
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	p, err := cfg.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline() error: %v", err)
	}
	if p.Channels != 4 {
		t.Errorf("Channels = %d, want 4", p.Channels)
	}
	if diff := cmp.Diff([]string{"open", "close", "rest"}, p.ClassNames); diff != "" {
		t.Errorf("ClassNames mismatch (-want +got):\n%s", diff)
	}
	if p.BandHighHz != 300 {
		t.Errorf("BandHighHz = %f, want 300", p.BandHighHz)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"wrong extension", "acq.txt", `{}`},
		{"bad json", "acq.json", `{"window_ms": `},
		{"bad yaml", "acq.yml", "channels: [\n"},
		{"negative rate", "rate.json", `{"sample_rate_hz": -1}`},
		{"bad duration", "dur.json", `{"read_timeout": "soon"}`},
		{"zero read timeout", "read0.json", `{"read_timeout": "0s"}`},
		{"zero worker timeout", "worker0.json", `{"worker_timeout": "0s"}`},
		{"zero replay interval", "replay0.json", `{"replay_interval": "0s"}`},
		{"negative settle delay", "settle.json", `{"settle_delay": "-1s"}`},
		{"band order too high", "order.json", `{"band_order": 12}`},
		{"single class", "classes.json", `{"class_names": ["only"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			if _, err := LoadFile(path); err == nil {
				t.Errorf("LoadFile(%s) expected error, got nil", tt.file)
			}
		})
	}

	if _, err := LoadFile(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("LoadFile on missing file expected error, got nil")
	}
}

func TestPipelineCrossFieldValidation(t *testing.T) {
	ptrF := func(v float64) *float64 { return &v }
	ptrS := func(v string) *string { return &v }

	tests := []struct {
		name string
		cfg  *File
	}{
		{"band above nyquist", &File{BandHighHz: ptrF(375)}},
		{"band inverted", &File{BandLowHz: ptrF(200), BandHighHz: ptrF(100)}},
		{"notch above nyquist", &File{NotchFreqsHz: []float64{400}}},
		{"idle class missing", &File{IdleClass: ptrS("Rest")}},
		{"duplicate class", &File{ClassNames: []string{"a", "a", "Nada"}}},
		{"blocking reads", &File{ReadTimeout: ptrS("0s")}},
		{"unbounded worker", &File{WorkerTimeout: ptrS("0s")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.Pipeline(); err == nil {
				t.Errorf("Pipeline() expected error, got nil")
			}
		})
	}
}

func TestMustLoadDefaultFileMatchesBuiltins(t *testing.T) {
	cfg := MustLoadDefaultFile()
	p, err := cfg.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline() error: %v", err)
	}
	if diff := cmp.Diff(DefaultPipeline(), p); diff != "" {
		t.Errorf("defaults file drifted from built-in defaults (-builtin +file):\n%s", diff)
	}
}
