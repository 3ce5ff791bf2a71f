package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattjoyce/courier/internal/events"
)

const streamLines = 10

// stateOf maps a hub event type onto the delivery state palette.
func stateOf(eventType string) string {
	switch eventType {
	case events.TypeEventCreated:
		return "received"
	case events.TypeEventDuplicate:
		return "duplicate"
	case events.TypeEventDelivered:
		return "delivered"
	case events.TypeEventFailed:
		return "failed"
	case events.TypeRelayDead:
		return "dead"
	}
	return ""
}

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	if len(eventLog) == 0 {
		return theme.panel("EVENT STREAM", width, theme.Dim.Render("  Waiting for events..."))
	}

	lines := make([]string, 0, streamLines)
	for _, e := range eventLog[:min(len(eventLog), streamLines)] {
		lines = append(lines, " "+formatEvent(e, theme))
	}
	return theme.panel("EVENT STREAM", width, strings.Join(lines, "\n"))
}

func formatEvent(e events.Event, theme Theme) string {
	return fmt.Sprintf("%s %s %s",
		theme.Dim.Render(e.At.Format("15:04:05")),
		theme.Status(stateOf(e.Type)).Render(fmt.Sprintf("%-16s", e.Type)),
		extractEventDesc(e),
	)
}

// extractEventDesc summarises a payload as "[short id] source client status error".
func extractEventDesc(e events.Event) string {
	var data struct {
		EventID  string `json:"event_id"`
		Source   string `json:"source"`
		ClientID string `json:"client_id"`
		Status   string `json:"status"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return truncate(string(e.Data), 60)
	}

	var parts []string
	if data.EventID != "" {
		parts = append(parts, "["+shortID(data.EventID)+"]")
	}
	for _, p := range []string{data.Source, data.ClientID, data.Status, data.Error} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return truncate(string(e.Data), 60)
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
