package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// renderOutcome formats the one line summary printed after an operation.
func renderOutcome(what string, ok bool, result fmt.Stringer) string {
	if ok {
		return okStyle.Render("✓") + " " + what
	}
	return errorStyle.Render("✗") + " " + what + ": " + result.String()
}

// renderListing prints directories first, each group already sorted.
func renderListing(dirs, files []string) string {
	var b strings.Builder
	for _, d := range dirs {
		b.WriteString(dirStyle.Render(d + "/"))
		b.WriteByte('\n')
	}
	for _, f := range files {
		b.WriteString(f)
		b.WriteByte('\n')
	}
	if len(dirs)+len(files) == 0 {
		b.WriteString(dimStyle.Render("(empty)"))
		b.WriteByte('\n')
	}
	return b.String()
}

// progressBar renders fraction in [0,1] as a fixed width bar.
func progressBar(fraction float64, width int) string {
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction * float64(width))
	return "[" + strings.Repeat("=", filled) + dimStyle.Render(strings.Repeat("-", width-filled)) + "]" +
		fmt.Sprintf(" %3.0f%%", fraction*100)
}
