package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// activityWindow is how long after an event the activity spinner keeps turning.
const activityWindow = 10 * time.Second

// HealthState tracks gateway health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	QueueDepth    int
	Connected     bool
	LastCheck     time.Time
}

func (h HealthState) label(theme Theme) string {
	switch {
	case !h.Connected:
		return theme.Alert.Render("● CONNECTING")
	case h.Status != "" && h.Status != "ok":
		return theme.Alert.Render("● DEGRADED")
	default:
		return theme.Status("delivered").Render("● HEALTHY")
	}
}

func renderHeader(health HealthState, counters Counters, spin spinner.Model, lastEvent, now time.Time, theme Theme, width int) string {
	activity := theme.Dim.Render("idle")
	if !lastEvent.IsZero() {
		ago := now.Sub(lastEvent).Round(time.Second)
		activity = theme.Dim.Render(fmt.Sprintf("last event %s ago", ago))
		if ago < activityWindow {
			activity = spin.View() + " " + activity
		}
	}

	title := lipgloss.JoinHorizontal(lipgloss.Top,
		"COURIER WATCH  ",
		theme.Dim.Render(now.Format("15:04:05")),
	)
	status := fmt.Sprintf("%s  up %s  relay queue %d",
		health.label(theme),
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.QueueDepth,
	)
	counts := fmt.Sprintf("received %d  %s  %s  duplicates %d  %s",
		counters.Received,
		theme.Status("delivered").Render(fmt.Sprintf("delivered %d", counters.Delivered)),
		theme.Status("failed").Render(fmt.Sprintf("failed %d", counters.Failed)),
		counters.Duplicates,
		theme.Status("dead").Render(fmt.Sprintf("dead %d", counters.Dead)),
	)

	return theme.panel(title, width, " "+status, " "+counts, " "+activity)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
