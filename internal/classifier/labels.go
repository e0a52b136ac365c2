package classifier

import (
	"fmt"
)

// Label is one class of the model's output, identified by its position in
// the model's score vector.
type Label struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	// Idle marks the no-movement class, which never drives the actuator.
	Idle bool `json:"idle"`
}

func (l Label) String() string { return l.Name }

// Table is the fixed, ordered class table of a model.
type Table struct {
	labels []Label
	byName map[string]Label
}

// NewTable builds a table from the model's class names in output order.
// idle must be one of names.
func NewTable(names []string, idle string) (*Table, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("class table is empty")
	}
	t := &Table{byName: make(map[string]Label, len(names))}
	found := false
	for i, name := range names {
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("duplicate class name %q", name)
		}
		l := Label{Index: i, Name: name, Idle: name == idle}
		found = found || l.Idle
		t.labels = append(t.labels, l)
		t.byName[name] = l
	}
	if !found {
		return nil, fmt.Errorf("idle class %q not in %v", idle, names)
	}
	return t, nil
}

// Len returns the number of classes.
func (t *Table) Len() int { return len(t.labels) }

// At returns the label at index i.
func (t *Table) At(i int) (Label, error) {
	if i < 0 || i >= len(t.labels) {
		return Label{}, fmt.Errorf("class index %d outside [0, %d)", i, len(t.labels))
	}
	return t.labels[i], nil
}

// Lookup finds a label by display name.
func (t *Table) Lookup(name string) (Label, bool) {
	l, ok := t.byName[name]
	return l, ok
}

// Labels returns the table in index order.
func (t *Table) Labels() []Label {
	return append([]Label(nil), t.labels...)
}
