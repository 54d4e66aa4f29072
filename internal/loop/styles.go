package loop

import "github.com/charmbracelet/lipgloss"

// Color constants
const (
	ColorPrimary   = "39"  // Blue
	ColorSuccess   = "42"  // Green
	ColorWarning   = "214" // Orange
	ColorError     = "196" // Red
	ColorMuted     = "245" // Gray
	ColorHighlight = "212" // Pink
)

// Styles contains the lipgloss styles for loop output.
type Styles struct {
	Title    lipgloss.Style
	Banner   lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Muted    lipgloss.Style
	Duration lipgloss.Style
}

// DefaultStyles returns the default loop styles.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorPrimary)),
		Banner: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorHighlight)),
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorSuccess)),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorError)),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorWarning)),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorMuted)),
		Duration: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorMuted)),
	}
}

// Status icons
const (
	IconRunning   = "●"
	IconCompleted = "✓"
	IconExhausted = "⏱"
	IconCancelled = "⊘"
	IconFailed    = "✗"
)

// StateIcon returns the icon for a loop state.
func StateIcon(s State) string {
	switch s {
	case StateCompleted:
		return IconCompleted
	case StateExhausted:
		return IconExhausted
	case StateCancelled:
		return IconCancelled
	default:
		return IconRunning
	}
}

// StateStyle returns the style for a loop state.
func (s Styles) StateStyle(state State) lipgloss.Style {
	switch state {
	case StateCompleted:
		return s.Success
	case StateExhausted:
		return s.Warning
	case StateCancelled:
		return s.Error
	default:
		return s.Muted
	}
}
