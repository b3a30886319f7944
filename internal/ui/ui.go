// Package ui provides terminal output formatting for the tempora CLI:
// colored status lines for interactive terminals, plain text for pipes
// and CI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// colorsEnabled is detected once at startup. Rules:
//   - stdout must be a TTY
//   - NO_COLOR unset (https://no-color.org/)
//   - TERM != dumb
var colorsEnabled = detectColors()

func detectColors() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// SetColors overrides color detection. Used by the --no-color flag and tests.
func SetColors(enabled bool) {
	colorsEnabled = enabled
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // Green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // Red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // Yellow
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // Blue
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // Gray
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

func render(style lipgloss.Style, text string) string {
	if !colorsEnabled {
		return text
	}
	return style.Render(text)
}

// Themed status lines.
func Success(text string) string { return render(successStyle, "✓ "+text) }
func Error(text string) string   { return render(errorStyle, "✗ "+text) }
func Warning(text string) string { return render(warningStyle, "⚠ "+text) }
func Info(text string) string    { return render(infoStyle, "ℹ "+text) }

// Plain color and style helpers.
func Green(text string) string  { return render(successStyle, text) }
func Red(text string) string    { return render(errorStyle, text) }
func Yellow(text string) string { return render(warningStyle, text) }
func Dim(text string) string    { return render(dimStyle, text) }
func Bold(text string) string   { return render(boldStyle, text) }

// FormatError renders an error for terminal display.
func FormatError(err error) string {
	return Error(err.Error())
}
