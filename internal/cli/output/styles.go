package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by text output. Every style renders
// plain text when output is not a terminal.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Key     lipgloss.Style
}

// NewStyles builds the style set.
func NewStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header1: plain,
			Header2: plain,
			Success: plain,
			Warning: plain,
			Error:   plain,
			Muted:   plain,
			Key:     plain,
		}
	}
	return &Styles{
		Header1: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: lipgloss.NewStyle().Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Key:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// Status renders a data-quality status word in its colour.
func (s *Styles) Status(status string) string {
	switch status {
	case "pass":
		return s.Success.Render(status)
	case "warning":
		return s.Warning.Render(status)
	case "fail":
		return s.Error.Render(status)
	}
	return status
}
