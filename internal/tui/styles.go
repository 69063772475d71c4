package tui

import "github.com/charmbracelet/lipgloss"

// styles bundles the lipgloss renderers every view shares, named the same
// way the installer wizard's style set was: Title/Normal/Success/Subtle.
type styles struct {
	Title     lipgloss.Style
	Normal    lipgloss.Style
	Success   lipgloss.Style
	Subtle    lipgloss.Style
	Selected  lipgloss.Style
	Warning   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Normal:   lipgloss.NewStyle(),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}
