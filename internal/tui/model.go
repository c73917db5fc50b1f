package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/bootstrap/internal/engine"
	"github.com/alexisbeaulieu97/bootstrap/internal/model"
)

// statusPending marks steps the pipeline has not reached yet; the engine
// itself never emits it.
const statusPending = "pending"

// statusRunning marks the step currently executing.
const statusRunning = "running"

// EventMsg wraps a pipeline progress event for the Bubbletea loop.
type EventMsg engine.Event

// FinishedMsg reports that the pipeline returned.
type FinishedMsg struct {
	Err error
}

type stepLine struct {
	id       string
	name     string
	status   string
	message  string
	duration string
}

// Model contains the Bubbletea state for the bootstrap progress display.
type Model struct {
	lines    []stepLine
	index    map[string]int
	spin     spinner.Model
	dryRun   bool
	finished bool
	aborted  bool
	err      error
}

// NewModel constructs the progress model for the given step sequence.
func NewModel(steps []engine.Step, dryRun bool) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle

	m := Model{
		index:  make(map[string]int, len(steps)),
		spin:   sp,
		dryRun: dryRun,
	}
	for _, step := range steps {
		m.index[step.ID()] = len(m.lines)
		m.lines = append(m.lines, stepLine{
			id:     step.ID(),
			name:   step.Name(),
			status: statusPending,
		})
	}
	return m
}

// Init starts the spinner tick loop.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Aborted reports whether the user interrupted the run from the UI.
func (m Model) Aborted() bool {
	return m.aborted
}

// Err returns the pipeline error observed via FinishedMsg, if any.
func (m Model) Err() error {
	return m.err
}

// Completed counts steps with a recorded outcome.
func (m Model) Completed() int {
	n := 0
	for _, line := range m.lines {
		switch line.status {
		case statusPending, statusRunning:
		default:
			n++
		}
	}
	return n
}

// Changed counts steps that mutated (or would mutate) machine state.
func (m Model) Changed() int {
	n := 0
	for _, line := range m.lines {
		if line.status == model.StatusSuccess || line.status == model.StatusWouldApply {
			n++
		}
	}
	return n
}
