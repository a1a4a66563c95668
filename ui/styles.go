package ui

import "github.com/charmbracelet/lipgloss"

const (
	keyEnter = "enter"
	keyEsc   = "esc"
)

var (
	cream   = lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}
	fuchsia = lipgloss.Color("#EE6FF8")
	green   = lipgloss.Color("#04B575")
	red     = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"})

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(red).
			Padding(0, 1)

	logoStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(fuchsia).
			Bold(true)
)

func logoView() string {
	return logoStyle.Render(" readaloud ")
}
