package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#05ffa1"))
	errorStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	footerStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	inputPane           = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))
	disabledInputPane = inputPane.BorderForeground(lipgloss.Color("#555555"))
)
