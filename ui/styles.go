package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	normalFg    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#dddddd"}
	dimNormalFg = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}

	gray       = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	brightGray = lipgloss.AdaptiveColor{Light: "#847A85", Dark: "#979797"}

	cream    = lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}
	green    = lipgloss.Color("#04B575")
	gold     = lipgloss.AdaptiveColor{Light: "#9A7A1C", Dark: "#E2C275"}
	red      = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	fuchsia  = lipgloss.Color("#EE6FF8")
	teal     = lipgloss.AdaptiveColor{Light: "#0E7C7B", Dark: "#4FD1C5"}
	highline = lipgloss.AdaptiveColor{Light: "#F3E9C6", Dark: "#3A3320"}
)

var (
	normalStyle   = lipgloss.NewStyle().Foreground(normalFg)
	subtleStyle   = lipgloss.NewStyle().Foreground(gray)
	dimStyle      = lipgloss.NewStyle().Foreground(dimNormalFg)
	selectedStyle = lipgloss.NewStyle().Foreground(fuchsia).Bold(true)
	badgeStyle    = lipgloss.NewStyle().Foreground(gold)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(red).
			Padding(0, 1)

	logoStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(teal).
			Bold(true)

	titleStyle = lipgloss.NewStyle().
			Foreground(teal).
			Bold(true)

	ayahNumberStyle  = lipgloss.NewStyle().Foreground(gold)
	translationStyle = lipgloss.NewStyle().Foreground(brightGray).Italic(true)

	currentAyahStyle = lipgloss.NewStyle().
				Background(highline).
				Bold(true)
)

func logoView() string {
	return logoStyle.Render(" Tartil ")
}

// resolveStyle turns "auto" into "dark" or "light".
func resolveStyle(style string) string {
	switch style {
	case "dark", "light":
		return style
	}
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
