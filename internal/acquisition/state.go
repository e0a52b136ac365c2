// Package acquisition runs the real-time loop: read a sample, buffer it and,
// once a window is full, condition it, classify it, publish the label, drive
// the stimulator and record the result.
package acquisition

import (
	"errors"
	"time"

	"github.com/banshee-data/emgfes/internal/classifier"
)

// State is the lifecycle of the acquisition loop.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

var (
	ErrNotConfirmed   = errors.New("start not confirmed")
	ErrAlreadyRunning = errors.New("acquisition already running")
	ErrNotRunning     = errors.New("acquisition not running")
	// ErrBusy rejects session operations while acquisition or a replay is
	// in progress.
	ErrBusy = errors.New("busy: stop the session first")
)

// EventKind distinguishes the events published to displays.
type EventKind string

const (
	EventLabel  EventKind = "label"
	EventState  EventKind = "state"
	EventReplay EventKind = "replay"
)

// Event is what displays receive. Label events carry the classification;
// state events carry the new state and a short human readable message;
// replay events carry a label read back from a session file.
type Event struct {
	Kind    EventKind         `json:"kind"`
	Time    time.Time         `json:"time"`
	State   State             `json:"state,omitempty"`
	Label   *classifier.Label `json:"label,omitempty"`
	Scores  []float32         `json:"scores,omitempty"`
	Name    string            `json:"name,omitempty"`
	Index   int               `json:"index"`
	Total   int               `json:"total,omitempty"`
	Message string            `json:"message,omitempty"`
}
