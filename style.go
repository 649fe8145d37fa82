package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	homedir "github.com/mitchellh/go-homedir"
)

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render
)

// expandPath resolves a leading ~ and environment variables.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return os.ExpandEnv(p)
}
