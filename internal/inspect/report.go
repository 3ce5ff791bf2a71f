// Package inspect renders the delivery history of one stored event: the
// event row itself plus every relay job the trigger path ran for it.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/courier/internal/queue"
	"github.com/mattjoyce/courier/internal/store"
)

// EventSource loads stored events.
type EventSource interface {
	Get(ctx context.Context, id string) (*store.InboundEvent, error)
}

// JobSource lists relay jobs for an event.
type JobSource interface {
	FindJobsByEvent(ctx context.Context, eventID string) ([]*queue.Job, error)
}

// Report is the structured JSON representation of an event report.
type Report struct {
	EventID       string     `json:"event_id"`
	Source        string     `json:"source"`
	MessageID     string     `json:"message_id,omitempty"`
	From          string     `json:"from"`
	ClientID      string     `json:"client_id,omitempty"`
	SlackChannel  string     `json:"slack_channel,omitempty"`
	Status        string     `json:"status"`
	Attempted     bool       `json:"delivery_attempted"`
	CreatedAt     time.Time  `json:"created_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	DeliveryError string     `json:"delivery_error,omitempty"`
	Text          string     `json:"text"`
	Relays        []Relay    `json:"relays"`
}

// Relay is one relay job run for the event.
type Relay struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// BuildReport returns the human-readable report for eventID.
func BuildReport(ctx context.Context, events EventSource, jobs JobSource, eventID string) (string, error) {
	report, err := gatherReportData(ctx, events, jobs, eventID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Event %s\n", report.EventID)
	fmt.Fprintf(&out, "  source     : %s\n", report.Source)
	fmt.Fprintf(&out, "  message_id : %s\n", renderUnset(report.MessageID, "<none>"))
	fmt.Fprintf(&out, "  from       : %s\n", report.From)
	fmt.Fprintf(&out, "  client     : %s\n", renderUnset(report.ClientID, "<unmapped>"))
	fmt.Fprintf(&out, "  channel    : %s\n", renderUnset(report.SlackChannel, "<none>"))
	fmt.Fprintf(&out, "  status     : %s\n", report.Status)
	fmt.Fprintf(&out, "  attempted  : %t\n", report.Attempted)
	fmt.Fprintf(&out, "  created    : %s\n", report.CreatedAt.Format(time.RFC3339))
	if report.DeliveredAt != nil {
		fmt.Fprintf(&out, "  delivered  : %s\n", report.DeliveredAt.Format(time.RFC3339))
	}
	if report.DeliveryError != "" {
		fmt.Fprintf(&out, "  error      : %s\n", report.DeliveryError)
	}
	fmt.Fprintf(&out, "  text       :\n")
	for _, line := range strings.Split(strings.TrimRight(report.Text, "\n"), "\n") {
		fmt.Fprintf(&out, "    %s\n", line)
	}

	if len(report.Relays) == 0 {
		fmt.Fprintf(&out, "\nRelays: <none>\n")
		return out.String(), nil
	}

	fmt.Fprintf(&out, "\nRelays: %d\n", len(report.Relays))
	for i, r := range report.Relays {
		fmt.Fprintf(&out, "  [%d] %s\n", i+1, r.JobID)
		fmt.Fprintf(&out, "    status  : %s (attempt %d/%d)\n", r.Status, r.Attempt, r.MaxAttempts)
		if r.NextRetryAt != nil {
			fmt.Fprintf(&out, "    retry at: %s\n", r.NextRetryAt.Format(time.RFC3339))
		}
		if r.CompletedAt != nil {
			fmt.Fprintf(&out, "    done    : %s\n", r.CompletedAt.Format(time.RFC3339))
		}
		if r.LastError != "" {
			fmt.Fprintf(&out, "    error   : %s\n", r.LastError)
		}
	}
	return out.String(), nil
}

// BuildJSONReport returns the machine-readable JSON report.
func BuildJSONReport(ctx context.Context, events EventSource, jobs JobSource, eventID string) (string, error) {
	report, err := gatherReportData(ctx, events, jobs, eventID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, events EventSource, jobs JobSource, eventID string) (*Report, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	ev, err := events.Get(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("event %q not found", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("load event %q: %w", eventID, err)
	}

	report := &Report{
		EventID:      ev.ID,
		Source:       ev.Source,
		MessageID:    ev.MessageID,
		From:         ev.From,
		SlackChannel: ev.SlackChannel,
		Status:       string(ev.Status),
		Attempted:    ev.DeliveryAttempted,
		CreatedAt:    ev.CreatedAt,
		DeliveredAt:  ev.DeliveredAt,
		Text:         ev.Text,
		Relays:       []Relay{},
	}
	if ev.ClientID != nil {
		report.ClientID = *ev.ClientID
	}
	if ev.DeliveryError != nil {
		report.DeliveryError = *ev.DeliveryError
	}

	// The trigger path may be disabled, in which case there are no jobs.
	if jobs == nil {
		return report, nil
	}
	list, err := jobs.FindJobsByEvent(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("load relay jobs: %w", err)
	}
	for _, j := range list {
		r := Relay{
			JobID:       j.ID,
			Status:      string(j.Status),
			Attempt:     j.Attempt,
			MaxAttempts: j.MaxAttempts,
			CreatedAt:   j.CreatedAt,
			CompletedAt: j.CompletedAt,
			NextRetryAt: j.NextRetryAt,
		}
		if j.LastError != nil {
			r.LastError = *j.LastError
		}
		report.Relays = append(report.Relays, r)
	}
	return report, nil
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
