package watch

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/courier/internal/events"
)

const maxDeliveries = 100

// DeliveryState tracks one stored event as its delivery status changes.
type DeliveryState struct {
	EventID  string
	ClientID string
	Source   string
	Status   string
	Error    string
	Updated  time.Time
}

// Counters totals lifecycle events seen since the watch started.
type Counters struct {
	Received   int
	Duplicates int
	Delivered  int
	Failed     int
	Dead       int
}

// Board holds delivery state keyed by event id, newest first.
type Board struct {
	byID     map[string]*DeliveryState
	order    []string
	counters Counters
}

func NewBoard() *Board {
	return &Board{byID: make(map[string]*DeliveryState)}
}

// Apply folds one hub event into the board.
func (b *Board) Apply(e events.Event) {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	eventID, _ := data["event_id"].(string)

	switch e.Type {
	case events.TypeEventCreated:
		b.counters.Received++
	case events.TypeEventDuplicate:
		b.counters.Duplicates++
		return
	case events.TypeEventDelivered:
		b.counters.Delivered++
	case events.TypeEventFailed:
		b.counters.Failed++
	case events.TypeRelayDead:
		b.counters.Dead++
	default:
		return
	}
	if eventID == "" {
		return
	}

	d := b.track(eventID)
	d.Updated = e.At
	switch e.Type {
	case events.TypeEventCreated:
		d.Source, _ = data["source"].(string)
		d.ClientID, _ = data["client_id"].(string)
		d.Status, _ = data["status"].(string)
	case events.TypeEventDelivered:
		d.Status = "delivered"
		d.Error = ""
	case events.TypeEventFailed:
		d.Status = "failed"
		d.Error, _ = data["error"].(string)
	case events.TypeRelayDead:
		d.Status = "dead"
		d.Error, _ = data["error"].(string)
	}
}

func (b *Board) track(eventID string) *DeliveryState {
	if d, ok := b.byID[eventID]; ok {
		return d
	}
	d := &DeliveryState{EventID: eventID}
	b.byID[eventID] = d
	b.order = append([]string{eventID}, b.order...)
	if len(b.order) > maxDeliveries {
		for _, old := range b.order[maxDeliveries:] {
			delete(b.byID, old)
		}
		b.order = b.order[:maxDeliveries]
	}
	return d
}

// Get returns the tracked state for eventID, or nil.
func (b *Board) Get(eventID string) *DeliveryState {
	return b.byID[eventID]
}

func (b *Board) Counters() Counters {
	return b.counters
}

// Rows renders the board for the deliveries table.
func (b *Board) Rows() []table.Row {
	rows := make([]table.Row, 0, len(b.order))
	for _, id := range b.order {
		d := b.byID[id]
		client := d.ClientID
		if client == "" {
			client = "-"
		}
		updated := "-"
		if !d.Updated.IsZero() {
			updated = d.Updated.Format("15:04:05")
		}
		rows = append(rows, table.Row{
			statusGlyph(d.Status),
			shortID(d.EventID),
			client,
			d.Source,
			d.Status,
			updated,
			d.Error,
		})
	}
	return rows
}

func newDeliveryTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Event", Width: 10},
			{Title: "Client", Width: 16},
			{Title: "Source", Width: 9},
			{Title: "Status", Width: 10},
			{Title: "Updated", Width: 8},
			{Title: "Error", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func renderDeliveries(t table.Model, theme Theme, width int) string {
	if len(t.Rows()) == 0 {
		return theme.panel("DELIVERIES", width, theme.Dim.Render("  No messages observed yet..."))
	}
	return theme.panel("DELIVERIES", width, t.View())
}

func statusGlyph(status string) string {
	switch status {
	case "delivered":
		return "✓"
	case "failed":
		return "✗"
	case "dead":
		return "☠"
	case "pending":
		return "…"
	default:
		return "·"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
