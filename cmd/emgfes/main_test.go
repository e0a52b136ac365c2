package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/config"
	"github.com/banshee-data/emgfes/internal/emg"
)

func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"listen", *listen, ":8080"},
		{"sessions-dir", *sessionsDir, "sessions"},
		{"db", *dbFlag, "sessions.db"},
		{"dev", *devMode, false},
		{"disable-fes", *disableFES, false},
		{"tui", *tuiFlag, false},
		{"mqtt-topic", *mqttTopic, "emgfes"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("-%s default = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestEnvDefault(t *testing.T) {
	t.Setenv("EMG_PORT", "/dev/ttyACM0")

	if got := envDefault("", "EMG_PORT"); got != "/dev/ttyACM0" {
		t.Errorf("envDefault from env = %q", got)
	}
	if got := envDefault("/dev/ttyUSB1", "EMG_PORT"); got != "/dev/ttyUSB1" {
		t.Errorf("flag should win over env, got %q", got)
	}
	if got := envDefault("", "EMGFES_UNSET_FOR_TEST"); got != "" {
		t.Errorf("unset env = %q, want empty", got)
	}
}

func TestLoadPipeline(t *testing.T) {
	p, err := loadPipeline("")
	if err != nil {
		t.Fatalf("loadPipeline(\"\") error: %v", err)
	}
	if p.SamplesPerWindow != 375 {
		t.Errorf("default SamplesPerWindow = %d, want 375", p.SamplesPerWindow)
	}

	path := filepath.Join(t.TempDir(), "acq.yaml")
	if err := os.WriteFile(path, []byte("window_ms: 200\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err = loadPipeline(path)
	if err != nil {
		t.Fatalf("loadPipeline(%s) error: %v", path, err)
	}
	if p.SamplesPerWindow != 150 {
		t.Errorf("SamplesPerWindow = %d, want 150", p.SamplesPerWindow)
	}

	if _, err := loadPipeline(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestOpenModel(t *testing.T) {
	p := config.DefaultPipeline()

	if _, err := openModel("", false, p); err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("openModel without artifact outside dev mode = %v, want required error", err)
	}

	m, err := openModel("", true, p)
	if err != nil {
		t.Fatalf("dev model: %v", err)
	}
	defer m.Close()
	if err := classifier.Verify(context.Background(), m, p.SamplesPerWindow, p.Channels, len(p.ClassNames)); err != nil {
		t.Errorf("dev model does not fit the default pipeline: %v", err)
	}

	if _, err := openModel(filepath.Join(t.TempDir(), "nope.json"), false, p); err == nil {
		t.Error("expected error for missing artifact")
	}
}

func TestDevEMGPortProducesRecords(t *testing.T) {
	p := config.DefaultPipeline()
	p.ReadTimeout = 200 * time.Millisecond

	port, err := devEMGPort(p, "")
	if err != nil {
		t.Fatalf("devEMGPort: %v", err)
	}
	defer port.Close()

	r := emg.NewReader(port, p.Channels)
	for i := 0; i < 10; i++ {
		s, err := r.ReadSample()
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		if len(s) != p.Channels {
			t.Fatalf("sample %d has %d channels", i, len(s))
		}
	}

	fixturePath := filepath.Join(t.TempDir(), "emg.txt")
	if err := os.WriteFile(fixturePath, []byte("1,2,3,4,5\n\n6,7,8,9,10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fixturePort, err := devEMGPort(p, fixturePath)
	if err != nil {
		t.Fatalf("devEMGPort with fixture: %v", err)
	}
	defer fixturePort.Close()
	r = emg.NewReader(fixturePort, p.Channels)
	for _, want := range []int{1, 6, 1} {
		s, err := r.ReadSample()
		if err != nil {
			t.Fatal(err)
		}
		if s[0] != want {
			t.Errorf("fixture sample starts with %d, want %d", s[0], want)
		}
	}

	if _, err := devEMGPort(p, filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing fixture")
	}
}

func TestArchiverDisabledWithoutDB(t *testing.T) {
	if archiver(nil, 5) != nil {
		t.Error("archiver without a database should be nil")
	}
}
