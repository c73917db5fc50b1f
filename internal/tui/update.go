package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/bootstrap/internal/engine"
)

// Update processes pipeline events and user input.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case EventMsg:
		m.applyEvent(engine.Event(msg))
		return m, nil

	case FinishedMsg:
		m.finished = true
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.finished {
				m.aborted = true
			}
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *Model) applyEvent(event engine.Event) {
	idx, ok := m.index[event.StepID]
	if !ok {
		return
	}
	line := &m.lines[idx]

	switch event.Phase {
	case engine.PhaseRunning:
		line.status = statusRunning
	case engine.PhaseDone:
		if event.Result == nil {
			return
		}
		line.status = event.Result.Status
		line.message = event.Result.Message
		if event.Result.Duration > 0 {
			line.duration = event.Result.Duration.Truncate(10 * time.Millisecond).String()
		}
	}
}
