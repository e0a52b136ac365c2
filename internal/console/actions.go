package console

import (
	"fmt"
	"time"

	"github.com/banshee-data/emgfes/internal/acquisition"
	"github.com/banshee-data/emgfes/internal/session"
)

// Actions are the session commands the console can issue.
type Actions interface {
	Start(confirmed bool) error
	Stop() error
	// Save writes the session under name, or a timestamped default, and
	// returns the file written.
	Save(name string) (string, error)
	Discard() (int, error)
	// Replay starts replaying the labels of a saved session file and
	// returns how many there are.
	Replay(name string) (int, error)
	CancelReplay() error
	Status() acquisition.Status
}

// ControllerActions runs Actions against an acquisition controller, keeping
// session files inside SessionsDir.
type ControllerActions struct {
	Controller  *acquisition.Controller
	SessionsDir string
	// Archive is called after a successful save. Optional.
	Archive func(path string, records []session.Record)
	Now     func() time.Time
}

func (a *ControllerActions) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *ControllerActions) Start(confirmed bool) error { return a.Controller.Start(confirmed) }
func (a *ControllerActions) Stop() error                { return a.Controller.Stop() }
func (a *ControllerActions) Discard() (int, error)      { return a.Controller.Discard() }
func (a *ControllerActions) CancelReplay() error        { return a.Controller.CancelReplay() }
func (a *ControllerActions) Status() acquisition.Status { return a.Controller.Status() }

func (a *ControllerActions) Save(name string) (string, error) {
	path, err := session.ResolvePath(a.SessionsDir, name, a.now())
	if err != nil {
		return "", err
	}
	records, err := a.Controller.Save(path)
	if err != nil {
		return "", err
	}
	if a.Archive != nil {
		a.Archive(path, records)
	}
	return path, nil
}

func (a *ControllerActions) Replay(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: no file name given", session.ErrPath)
	}
	path, err := session.ResolvePath(a.SessionsDir, name, a.now())
	if err != nil {
		return 0, err
	}
	rows, err := session.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: %s has no rows", session.ErrFormat, name)
	}
	if err := a.Controller.Replay(session.Labels(rows)); err != nil {
		return 0, err
	}
	return len(rows), nil
}
