package tui

import (
	"botsim/pkg/fleet"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	buttonStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	statusStyles = map[fleet.Status]lipgloss.Style{
		fleet.StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		fleet.StatusStopped: lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		fleet.StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func renderStatus(s fleet.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		style = dimStyle
	}
	return style.Render("● " + string(s))
}
