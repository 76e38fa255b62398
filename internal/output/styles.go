package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette. All colors used by the CLI are named here.
var (
	// ColorCyan is used for identifiable nouns: operation names, routes, frames.
	ColorCyan = lipgloss.Color("14")

	// ColorYellow is used for cached artifacts and source positions.
	ColorYellow = lipgloss.Color("220")

	// ColorDimGray is used for borders and other structural chrome.
	ColorDimGray = lipgloss.Color("240")

	colorGreen      = lipgloss.Color("82")
	colorBoldRed    = lipgloss.Color("204")
	colorGreenCheck = lipgloss.Color("10")
)

// Semantic styles.
var (
	// StyleNoun styles identifiable nouns.
	StyleNoun = lipgloss.NewStyle().Foreground(ColorCyan)

	// StyleAction styles action verbs.
	StyleAction = lipgloss.NewStyle().Bold(true)

	// StyleDim styles structural chrome.
	StyleDim = lipgloss.NewStyle().Faint(true)

	// StyleSummary styles completion and summary lines.
	StyleSummary = lipgloss.NewStyle().Bold(true)
)

// Operation build statuses.
const (
	StatusCompiled = "compiled"
	StatusCached   = "cached"
	StatusMatched  = "matched"
	StatusSkipped  = "skipped"
	StatusPruned   = "pruned"
	StatusFailed   = "failed"
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case StatusCompiled, StatusMatched:
		return lipgloss.NewStyle().Foreground(colorGreen)
	case StatusCached:
		return lipgloss.NewStyle().Foreground(ColorYellow)
	case StatusSkipped, StatusPruned:
		return lipgloss.NewStyle().Faint(true)
	case StatusFailed:
		return lipgloss.NewStyle().Bold(true).Foreground(colorBoldRed)
	default:
		return lipgloss.NewStyle()
	}
}

// minOperationColumnWidth keeps status words aligned across lines.
const minOperationColumnWidth = 40

// FormatOperationLine renders an operation with a right-aligned status.
//
//	o:POST /orders create-order      compiled
//	o:ping                           cached
func FormatOperationLine(verb, route, name, status string) string {
	path := name
	if verb != "" {
		path = strings.TrimSpace(fmt.Sprintf("%s %s %s", verb, route, name))
	}

	padding := minOperationColumnWidth - len(path)
	if padding < 2 {
		padding = 2
	}
	return StyleDim.Render("o:") + StyleNoun.Render(path) + strings.Repeat(" ", padding) + statusStyle(status).Render(status)
}

// FormatCheckmark renders a green checkmark with a message.
func FormatCheckmark(msg string) string {
	check := lipgloss.NewStyle().Foreground(colorGreenCheck).Render("✔")
	return check + " " + msg
}

// vetLabelWidth aligns vet detail columns.
const vetLabelWidth = 32

// FormatVetCheck renders one passed check with an optional aligned detail.
func FormatVetCheck(label, detail string) string {
	if detail == "" {
		return FormatCheckmark(label)
	}
	padding := vetLabelWidth - len(label)
	if padding < 2 {
		padding = 2
	}
	return FormatCheckmark(label) + strings.Repeat(" ", padding) + StyleDim.Render(detail)
}
