// Package session keeps the in-memory record of a recording session and
// persists it as CSV for later replay.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/emg"
	"github.com/banshee-data/emgfes/internal/timeutil"
)

var (
	// ErrEmpty is returned when saving a session with no records.
	ErrEmpty = errors.New("no session data: record a session first")
	// ErrPersist wraps any failure to write a session file.
	ErrPersist = errors.New("failed to persist session")
)

// Record is one classified window: when it was classified, the raw sample
// that completed the window and the resulting label.
type Record struct {
	Timestamp float64
	Sample    emg.Sample
	Label     classifier.Label
}

// NewRecord stamps a record with t in epoch seconds.
func NewRecord(t time.Time, s emg.Sample, l classifier.Label) Record {
	return Record{Timestamp: timeutil.EpochSeconds(t), Sample: s, Label: l}
}

// Recorder accumulates records across runs until they are saved or
// discarded. It is safe for concurrent use.
type Recorder struct {
	channels int

	mu      sync.Mutex
	records []Record
}

// NewRecorder returns an empty recorder for samples of the given width.
func NewRecorder(channels int) *Recorder {
	return &Recorder{channels: channels}
}

// Append adds r to the session.
func (rec *Recorder) Append(r Record) {
	rec.mu.Lock()
	rec.records = append(rec.records, r)
	rec.mu.Unlock()
}

// Len returns the number of unsaved records.
func (rec *Recorder) Len() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.records)
}

// Snapshot returns a copy of the unsaved records.
func (rec *Recorder) Snapshot() []Record {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Record(nil), rec.records...)
}

// Discard drops the unsaved records and returns how many there were.
func (rec *Recorder) Discard() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := len(rec.records)
	rec.records = nil
	return n
}

// Save writes the session to path as CSV and, only once the file is
// complete on disk, clears the in-memory records. It returns the records
// written. The file is written to a temporary sibling and renamed so a
// failed save never leaves a truncated session behind.
func (rec *Recorder) Save(path string) ([]Record, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.records) == 0 {
		return nil, ErrEmpty
	}
	if err := writeFileAtomic(path, rec.records, rec.channels); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	saved := rec.records
	rec.records = nil
	return saved, nil
}

func writeFileAtomic(path string, records []Record, channels int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, records, channels); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
