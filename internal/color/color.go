package color

import (
	"github.com/charmbracelet/lipgloss"
)

// Icons prefixed to verdicts.
const (
	IconPass = "✔"
	IconFail = "✘"
)

var (
	// TitleStyle is used for table captions and section headings.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#005FAF", Dark: "#58A6FF"})

	// HeaderStyle renders table header cells.
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"})

	// PassStyle renders successful verdicts.
	PassStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#007700", Dark: "#3FB950"})

	// FailStyle renders failed verdicts and error text.
	FailStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#F85149"})

	// WarnStyle renders notices that need attention but are not failures.
	WarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B35900", Dark: "#D29922"})

	// ModeStyle renders the response mode column.
	ModeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#8700AF", Dark: "#D2A8FF"})

	// MutedStyle de-emphasises secondary details such as failure reasons.
	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#8B949E"})
)

// Initialize tells lipgloss which background the terminal has, so adaptive
// colors pick the matching variant.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// Verdict renders a PASS/FAIL status with its icon.
func Verdict(status string) string {
	if status == "PASS" {
		return PassStyle.Render(IconPass + " " + status)
	}
	return FailStyle.Render(IconFail + " " + status)
}
