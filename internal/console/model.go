// Package console is the terminal display: it shows the running state and
// the latest movement label, and issues the session commands.
package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/banshee-data/emgfes/internal/acquisition"
	"github.com/banshee-data/emgfes/internal/classifier"
)

const maxLogLines = 6

type promptKind int

const (
	promptNone promptKind = iota
	promptConfirmStart
	promptConfirmDiscard
	promptReplayName
	promptSaveName
)

// ─── messages ────────────────────────────────────────────────────────────────

type eventMsg acquisition.Event

type hubClosedMsg struct{}

type actionDoneMsg struct {
	text string
	err  error
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the Bubble Tea model of the console. It renders hub events and
// never touches the acquisition worker directly; every command goes through
// Actions on its own goroutine.
type Model struct {
	actions    Actions
	events     <-chan acquisition.Event
	classNames []string

	state     acquisition.State
	replaying bool
	label     *classifier.Label
	scores    []float32
	labelAt   time.Time
	replayPos string

	prompt promptKind
	input  string
	log    []string
	width  int
}

// NewModel returns a console reading events from events. classNames label
// the score bars, in model output order.
func NewModel(actions Actions, events <-chan acquisition.Event, classNames []string) Model {
	st := actions.Status()
	return Model{
		actions:    actions,
		events:     events,
		classNames: classNames,
		state:      st.State,
		replaying:  st.Replaying,
		label:      st.LastLabel,
		scores:     st.LastScores,
		log:        []string{"ready: press s to start"},
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan acquisition.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return hubClosedMsg{}
		}
		return eventMsg(e)
	}
}

// ─── update ──────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case eventMsg:
		m.apply(acquisition.Event(msg))
		return m, waitForEvent(m.events)

	case hubClosedMsg:
		m.addLog("event stream closed")
		return m, tea.Quit

	case actionDoneMsg:
		if msg.err != nil {
			m.addLog("error: " + msg.err.Error())
		} else if msg.text != "" {
			m.addLog(msg.text)
		}

	case tea.KeyMsg:
		if m.prompt != promptNone {
			return m.updatePrompt(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) apply(e acquisition.Event) {
	switch e.Kind {
	case acquisition.EventLabel:
		m.label = e.Label
		m.scores = e.Scores
		m.labelAt = e.Time
		m.replayPos = ""
	case acquisition.EventReplay:
		m.label = e.Label
		if m.label == nil {
			m.label = &classifier.Label{Index: -1, Name: e.Name}
		}
		m.scores = nil
		m.labelAt = e.Time
		m.replayPos = fmt.Sprintf("%d/%d", e.Index+1, e.Total)
	case acquisition.EventState:
		if e.State != "" {
			m.state = e.State
		}
		m.replaying = m.actions.Status().Replaying
		if e.Message != "" {
			m.addLog(e.Message)
		}
	}
}

func (m *Model) addLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "s":
		if m.state == acquisition.StateRunning {
			m.addLog("already running")
			return m, nil
		}
		m.prompt = promptConfirmStart
	case "x":
		return m, m.run(func() (string, error) { return "", m.actions.Stop() })
	case "w":
		m.prompt, m.input = promptSaveName, ""
	case "d":
		m.prompt = promptConfirmDiscard
	case "r":
		m.prompt, m.input = promptReplayName, ""
	case "c":
		return m, m.run(func() (string, error) {
			if err := m.actions.CancelReplay(); err != nil {
				return "", fmt.Errorf("no replay in progress")
			}
			return "", nil
		})
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	kind := m.prompt
	switch kind {
	case promptConfirmStart, promptConfirmDiscard:
		m.prompt = promptNone
		if s := msg.String(); s != "y" && s != "Y" {
			m.addLog("cancelled")
			return m, nil
		}
		if kind == promptConfirmStart {
			return m, m.run(func() (string, error) { return "", m.actions.Start(true) })
		}
		return m, m.run(func() (string, error) {
			n, err := m.actions.Discard()
			return fmt.Sprintf("dropped %d records", n), err
		})
	}

	// text prompts
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.prompt, m.input = promptNone, ""
		m.addLog("cancelled")
	case tea.KeyEnter:
		name := strings.TrimSpace(m.input)
		m.prompt, m.input = promptNone, ""
		if kind == promptSaveName {
			return m, m.run(func() (string, error) {
				path, err := m.actions.Save(name)
				return "saved " + path, err
			})
		}
		return m, m.run(func() (string, error) {
			n, err := m.actions.Replay(name)
			return fmt.Sprintf("loaded %d labels from %s", n, name), err
		})
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.input += string(msg.Runes)
	}
	return m, nil
}

// run executes an action off the UI goroutine; Stop can wait for a serial
// read timeout.
func (m Model) run(f func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := f()
		return actionDoneMsg{text: text, err: err}
	}
}

// ─── view ────────────────────────────────────────────────────────────────────

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#74c7ec")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(1, 4).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#b4befe"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fab387")).Bold(true)
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))

	stateStyles = map[acquisition.State]lipgloss.Style{
		acquisition.StateIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8")),
		acquisition.StateRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")).Bold(true),
		acquisition.StateStopped: lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")),
	}
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("EMG → FES") + "  " + stateStyles[m.state].Render(strings.ToUpper(string(m.state))))
	if m.replaying {
		b.WriteString(" " + mutedStyle.Render("(replaying)"))
	}
	b.WriteString("\n\n")

	name := "—"
	if m.label != nil {
		name = m.label.Name
	}
	if m.replayPos != "" {
		name += "  " + mutedStyle.Render(m.replayPos)
	}
	b.WriteString(labelStyle.Render(name) + "\n")

	if len(m.scores) == len(m.classNames) && len(m.scores) > 0 {
		for i, s := range m.scores {
			width := int(s*20 + 0.5)
			width = max(0, min(width, 20))
			fmt.Fprintf(&b, "  %-10s %s %.2f\n", m.classNames[i], barStyle.Render(strings.Repeat("█", width)+strings.Repeat("·", 20-width)), s)
		}
	}
	b.WriteString("\n")

	for _, line := range m.log {
		b.WriteString(mutedStyle.Render("  "+line) + "\n")
	}
	b.WriteString("\n")

	switch m.prompt {
	case promptConfirmStart:
		b.WriteString(promptStyle.Render("Electrodes placed? Stimulation starts with the first window. [y/N]"))
	case promptConfirmDiscard:
		b.WriteString(promptStyle.Render("Discard the recorded session? [y/N]"))
	case promptSaveName:
		b.WriteString(promptStyle.Render("Save as (empty for timestamp): ") + m.input + "▏")
	case promptReplayName:
		b.WriteString(promptStyle.Render("Replay file: ") + m.input + "▏")
	default:
		b.WriteString(mutedStyle.Render("s start · x stop · w save · d discard · r replay · c cancel replay · q quit"))
	}
	b.WriteString("\n")
	return b.String()
}

// Run shows the console until the user quits or ctx is done.
func Run(ctx context.Context, actions Actions, hub *acquisition.Hub, classNames []string) error {
	id, events := hub.Subscribe()
	defer hub.Unsubscribe(id)

	p := tea.NewProgram(NewModel(actions, events, classNames), tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}
