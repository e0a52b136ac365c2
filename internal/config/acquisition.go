package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical acquisition defaults file.
const DefaultConfigPath = "config/acquisition.defaults.json"

// DefaultClassNames is the output order of the pretrained movement model.
var DefaultClassNames = []string{"Índice", "Middle", "Anular", "Meñique", "Nada"}

// DefaultIdleClass names the class that never drives the FES device.
const DefaultIdleClass = "Nada"

// File is the on-disk acquisition configuration. Every field is optional;
// the Get* accessors supply the defaults for anything left unset so partial
// files are safe.
type File struct {
	// Acquisition
	SampleRateHz *float64 `json:"sample_rate_hz,omitempty" yaml:"sample_rate_hz,omitempty"`
	WindowMs     *int     `json:"window_ms,omitempty" yaml:"window_ms,omitempty"`
	Channels     *int     `json:"channels,omitempty" yaml:"channels,omitempty"`
	ReadTimeout  *string  `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"` // duration string like "1s"

	// Classes
	ClassNames []string `json:"class_names,omitempty" yaml:"class_names,omitempty"`
	IdleClass  *string  `json:"idle_class,omitempty" yaml:"idle_class,omitempty"`

	// Filters
	NotchFreqsHz []float64 `json:"notch_freqs_hz,omitempty" yaml:"notch_freqs_hz,omitempty"`
	NotchQ       *float64  `json:"notch_q,omitempty" yaml:"notch_q,omitempty"`
	BandLowHz    *float64  `json:"band_low_hz,omitempty" yaml:"band_low_hz,omitempty"`
	BandHighHz   *float64  `json:"band_high_hz,omitempty" yaml:"band_high_hz,omitempty"`
	BandOrder    *int      `json:"band_order,omitempty" yaml:"band_order,omitempty"`

	// Serial
	EMGBaud     *int    `json:"emg_baud,omitempty" yaml:"emg_baud,omitempty"`
	FESBaud     *int    `json:"fes_baud,omitempty" yaml:"fes_baud,omitempty"`
	SettleDelay *string `json:"settle_delay,omitempty" yaml:"settle_delay,omitempty"`

	// Surfaces
	ReplayInterval       *string `json:"replay_interval,omitempty" yaml:"replay_interval,omitempty"`
	MalformedLogInterval *string `json:"malformed_log_interval,omitempty" yaml:"malformed_log_interval,omitempty"`
	EventBuffer          *int    `json:"event_buffer,omitempty" yaml:"event_buffer,omitempty"`

	// External model worker
	WorkerCommand []string `json:"worker_command,omitempty" yaml:"worker_command,omitempty"`
	WorkerTimeout *string  `json:"worker_timeout,omitempty" yaml:"worker_timeout,omitempty"`
}

// EmptyFile returns a File with every field unset.
func EmptyFile() *File {
	return &File{}
}

// LoadFile loads a File from a .json, .yaml or .yml path. The file must be
// under 1MB.
func LoadFile(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFile()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultFile loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultFile() *File {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadFile(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *File) Validate() error {
	if c.SampleRateHz != nil && *c.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz must be positive, got %f", *c.SampleRateHz)
	}
	if c.WindowMs != nil && *c.WindowMs <= 0 {
		return fmt.Errorf("window_ms must be positive, got %d", *c.WindowMs)
	}
	if c.Channels != nil && *c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", *c.Channels)
	}
	if c.NotchQ != nil && *c.NotchQ <= 0 {
		return fmt.Errorf("notch_q must be positive, got %f", *c.NotchQ)
	}
	if c.BandOrder != nil && (*c.BandOrder < 1 || *c.BandOrder > 8) {
		return fmt.Errorf("band_order must be between 1 and 8, got %d", *c.BandOrder)
	}
	if c.EventBuffer != nil && *c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1, got %d", *c.EventBuffer)
	}
	if c.ClassNames != nil && len(c.ClassNames) < 2 {
		return fmt.Errorf("class_names needs at least 2 entries, got %d", len(c.ClassNames))
	}

	// A zero read timeout would leave the EMG port blocking, so Stop could
	// wait forever on a silent board.
	for _, d := range []struct {
		name     string
		v        *string
		positive bool
	}{
		{"read_timeout", c.ReadTimeout, true},
		{"worker_timeout", c.WorkerTimeout, true},
		{"replay_interval", c.ReplayInterval, true},
		{"settle_delay", c.SettleDelay, false},
		{"malformed_log_interval", c.MalformedLogInterval, false},
	} {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed < 0 || (d.positive && parsed == 0) {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.v)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetSampleRateHz returns the EMG sample rate or the default.
func (c *File) GetSampleRateHz() float64 {
	if c.SampleRateHz == nil {
		return 750
	}
	return *c.SampleRateHz
}

// GetWindowMs returns the classification window length or the default.
func (c *File) GetWindowMs() int {
	if c.WindowMs == nil {
		return 500
	}
	return *c.WindowMs
}

// GetChannels returns the channel count or the default.
func (c *File) GetChannels() int {
	if c.Channels == nil {
		return 5
	}
	return *c.Channels
}

// GetReadTimeout returns the serial read timeout or the default.
func (c *File) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, time.Second)
}

// GetClassNames returns the model's class table or the default.
func (c *File) GetClassNames() []string {
	if len(c.ClassNames) == 0 {
		return append([]string(nil), DefaultClassNames...)
	}
	return append([]string(nil), c.ClassNames...)
}

// GetIdleClass returns the no-movement class name or the default.
func (c *File) GetIdleClass() string {
	if c.IdleClass == nil {
		return DefaultIdleClass
	}
	return *c.IdleClass
}

// GetNotchFreqsHz returns the powerline notch centres or the default.
func (c *File) GetNotchFreqsHz() []float64 {
	if c.NotchFreqsHz == nil {
		return []float64{60, 50}
	}
	return append([]float64(nil), c.NotchFreqsHz...)
}

// GetNotchQ returns the notch quality factor or the default.
func (c *File) GetNotchQ() float64 {
	if c.NotchQ == nil {
		return 30
	}
	return *c.NotchQ
}

// GetBandLowHz returns the band-pass lower edge or the default.
func (c *File) GetBandLowHz() float64 {
	if c.BandLowHz == nil {
		return 20
	}
	return *c.BandLowHz
}

// GetBandHighHz returns the band-pass upper edge or the default.
func (c *File) GetBandHighHz() float64 {
	if c.BandHighHz == nil {
		return 374
	}
	return *c.BandHighHz
}

// GetBandOrder returns the Butterworth prototype order or the default.
func (c *File) GetBandOrder() int {
	if c.BandOrder == nil {
		return 4
	}
	return *c.BandOrder
}

// GetEMGBaud returns the EMG port baud rate or the default.
func (c *File) GetEMGBaud() int {
	if c.EMGBaud == nil {
		return 2000000
	}
	return *c.EMGBaud
}

// GetFESBaud returns the FES port baud rate or the default.
func (c *File) GetFESBaud() int {
	if c.FESBaud == nil {
		return 9600
	}
	return *c.FESBaud
}

// GetSettleDelay returns how long to wait after opening the ports.
func (c *File) GetSettleDelay() time.Duration {
	return durationOr(c.SettleDelay, 2*time.Second)
}

// GetReplayInterval returns the pause between replayed labels.
func (c *File) GetReplayInterval() time.Duration {
	return durationOr(c.ReplayInterval, 300*time.Millisecond)
}

// GetMalformedLogInterval returns the minimum gap between malformed-line logs.
func (c *File) GetMalformedLogInterval() time.Duration {
	return durationOr(c.MalformedLogInterval, 5*time.Second)
}

// GetEventBuffer returns the per-subscriber event queue depth.
func (c *File) GetEventBuffer() int {
	if c.EventBuffer == nil {
		return 16
	}
	return *c.EventBuffer
}

// GetWorkerCommand returns the external model worker command line.
func (c *File) GetWorkerCommand() []string {
	if len(c.WorkerCommand) == 0 {
		return []string{"python3", "scripts/keras_worker.py"}
	}
	return append([]string(nil), c.WorkerCommand...)
}

// GetWorkerTimeout returns the per-request deadline for the model worker.
func (c *File) GetWorkerTimeout() time.Duration {
	return durationOr(c.WorkerTimeout, 2*time.Second)
}
