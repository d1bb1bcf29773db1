package tui

import "github.com/charmbracelet/lipgloss"

// Styles groups the lipgloss styles of the terminal wizard.
type Styles struct {
	Header   lipgloss.Style
	Step     lipgloss.Style
	Active   lipgloss.Style
	Muted    lipgloss.Style
	Cursor   lipgloss.Style
	Selected lipgloss.Style
	Error    lipgloss.Style
	Footer   lipgloss.Style
	Table    lipgloss.Style
}

// DefaultStyles returns the default palette.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1f77b4")).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			MarginBottom(1),
		Step:     lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),
		Active:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff7f0e")),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Italic(true),
		Cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("#2ca02c")).Bold(true),
		Selected: lipgloss.NewStyle().Foreground(lipgloss.Color("#2ca02c")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("#d62728")).Bold(true),
		Footer:   lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).MarginTop(1),
		Table:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}
