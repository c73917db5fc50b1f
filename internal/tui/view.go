package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/bootstrap/internal/model"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	title := "bootstrap"
	if m.dryRun {
		title += " (dry-run)"
	}
	sections = append(sections, titleStyle.Render(title))

	var lines []string
	for _, line := range m.lines {
		rendered := fmt.Sprintf(" %s %s", m.icon(line.status), line.name)
		if strings.TrimSpace(line.message) != "" {
			rendered = fmt.Sprintf("%s: %s", rendered, line.message)
		}
		if line.duration != "" {
			rendered = fmt.Sprintf("%s (%s)", rendered, line.duration)
		}
		lines = append(lines, rendered)
	}
	sections = append(sections, strings.Join(lines, "\n"))

	if m.finished || m.aborted {
		sections = append(sections, summaryStyle.Render(m.summary()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) summary() string {
	switch {
	case m.aborted:
		return failureStyle.Render("interrupted")
	case m.err != nil:
		return failureStyle.Render(fmt.Sprintf("failed: %v", m.err))
	case m.dryRun:
		return dryRunStyle.Render(fmt.Sprintf("dry-run complete, %d of %d steps would change state", m.Changed(), len(m.lines)))
	default:
		return successStyle.Render(fmt.Sprintf("done, %d of %d steps changed state", m.Changed(), len(m.lines)))
	}
}

func (m Model) icon(status string) string {
	switch status {
	case model.StatusSuccess:
		return successStyle.Render("✓")
	case model.StatusSkipped:
		return skippedStyle.Render("⊘")
	case model.StatusFailed:
		return failureStyle.Render("✗")
	case model.StatusWouldApply:
		return dryRunStyle.Render("→")
	case statusRunning:
		return m.spin.View()
	default:
		return pendingStyle.Render("·")
	}
}
