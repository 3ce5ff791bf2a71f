// Package watch implements the courier watch TUI: a live view of the admin
// event stream with gateway health and per-message delivery state.
package watch

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#874BFD")
	green  = lipgloss.Color("#3FB950")
	red    = lipgloss.Color("#F85149")
	amber  = lipgloss.Color("#D29922")
	grey   = lipgloss.Color("#8B949E")
)

// Theme holds the styles shared by every panel.
type Theme struct {
	Panel lipgloss.Style
	Title lipgloss.Style
	Dim   lipgloss.Style
	Alert lipgloss.Style
	Help  lipgloss.Style

	// status maps delivery states and event types to a colour.
	status map[string]lipgloss.Style
}

func NewDefaultTheme() Theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return Theme{
		Panel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent),
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F6FC")).Padding(0, 1),
		Dim:   fg(grey),
		Alert: fg(red).Bold(true),
		Help:  fg(lipgloss.Color("241")),
		status: map[string]lipgloss.Style{
			"delivered": fg(green),
			"failed":    fg(red),
			"dead":      fg(grey).Strikethrough(true),
			"pending":   fg(amber),
			"received":  fg(amber),
			"duplicate": fg(accent),
		},
	}
}

// Status returns the style for a delivery state, dim when unknown.
func (t Theme) Status(state string) lipgloss.Style {
	if s, ok := t.status[state]; ok {
		return s
	}
	return t.Dim
}

// panel frames content under a title at the given outer width.
func (t Theme) panel(title string, width int, body ...string) string {
	content := lipgloss.JoinVertical(lipgloss.Left, append([]string{t.Title.Render(title)}, body...)...)
	return t.Panel.Width(width - 4).Render(content)
}
