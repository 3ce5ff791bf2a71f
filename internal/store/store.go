// Package store persists inbound events, the per-message delivery claims that
// gate notification, and the relay job outbox that feeds the trigger path.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/queue"
	"github.com/mattjoyce/courier/internal/storage"
)

// Outbox enqueues relay work inside the event insert transaction.
type Outbox interface {
	EnqueueTx(ctx context.Context, tx *sql.Tx, req queue.EnqueueRequest) (string, error)
}

type Store struct {
	db      *sql.DB
	dialect storage.Dialect
	outbox  Outbox
	hub     *events.Hub
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Store. outbox and hub may be nil.
func New(db *sql.DB, dialect storage.Dialect, outbox Outbox, hub *events.Hub, logger *slog.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		outbox:  outbox,
		hub:     hub,
		logger:  logger.With("component", "store"),
		now:     time.Now,
	}
}

// Write stores ev under a fresh id and a server-side creation timestamp;
// ev.ID and ev.CreatedAt are ignored. Status defaults to received.
func (s *Store) Write(ctx context.Context, ev InboundEvent) (WriteResult, error) {
	if ev.Source == "" {
		return WriteResult{}, fmt.Errorf("%w: source is required", ErrInvalidEvent)
	}
	if ev.Status == "" {
		ev.Status = StatusReceived
	}

	id := uuid.NewString()
	now := storage.FormatTime(s.now())

	var messageID, raw any
	if ev.MessageID != "" {
		messageID = ev.MessageID
	}
	if len(ev.Raw) > 0 {
		raw = string(ev.Raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WriteResult{}, storage.Unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var insertedID string
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`
INSERT INTO inbound_events(
  id, message_id, source, from_id, client_id, slack_channel, text, body, channel,
  provider_timestamp, raw, raw_digest, status, delivery_attempted, created_at, updated_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source, message_id) DO NOTHING
RETURNING id;
`),
		id, messageID, ev.Source, ev.From, ev.ClientID, nullString(ev.SlackChannel), ev.Text, ev.Body, ev.Channel,
		nullString(ev.ProviderTimestamp), raw, nullString(ev.RawDigest), ev.Status, boolInt(ev.DeliveryAttempted), now, now,
	).Scan(&insertedID)

	if errors.Is(err, sql.ErrNoRows) {
		var existing string
		if err := tx.QueryRowContext(ctx, s.dialect.Rebind(`
SELECT id FROM inbound_events WHERE source = ? AND message_id = ?;
`), ev.Source, ev.MessageID).Scan(&existing); err != nil {
			return WriteResult{}, storage.Unavailable("load existing event", err)
		}
		s.hub.Publish(events.TypeEventDuplicate, map[string]any{
			"event_id":   existing,
			"source":     ev.Source,
			"message_id": ev.MessageID,
		})
		s.logger.Info("duplicate event ignored", "event_id", existing, "source", ev.Source, "message_id", ev.MessageID)
		return WriteResult{ID: existing, Duplicate: true}, nil
	}
	if err != nil {
		return WriteResult{}, storage.Unavailable("insert event", err)
	}

	var jobID string
	if s.outbox != nil {
		jobID, err = s.outbox.EnqueueTx(ctx, tx, queue.EnqueueRequest{Kind: queue.KindRelay, EventID: insertedID})
		if err != nil {
			return WriteResult{}, storage.Unavailable("enqueue relay job", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return WriteResult{}, storage.Unavailable("commit tx", err)
	}

	s.hub.Publish(events.TypeEventCreated, map[string]any{
		"event_id":   insertedID,
		"source":     ev.Source,
		"message_id": ev.MessageID,
		"client_id":  ev.ClientID,
		"status":     ev.Status,
		"job_id":     jobID,
	})
	return WriteResult{ID: insertedID}, nil
}

// Claim atomically records that (source, messageID) is being processed.
// Only the first caller gets true. An empty messageID cannot be deduplicated
// and always claims.
func (s *Store) Claim(ctx context.Context, source, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
INSERT INTO delivery_claims(source, message_id, claimed_at)
VALUES(?, ?, ?)
ON CONFLICT(source, message_id) DO NOTHING;
`), source, messageID, storage.FormatTime(s.now()))
	if err != nil {
		return false, storage.Unavailable("claim message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Unavailable("claim rows affected", err)
	}
	return n == 1, nil
}

// Get returns the event with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*InboundEvent, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+eventColumns+` FROM inbound_events WHERE id = ?;`), id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storage.Unavailable("get event", err)
	}
	return ev, nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]InboundEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
SELECT `+eventColumns+`
FROM inbound_events
ORDER BY created_at DESC, id DESC
LIMIT ?;
`), limit)
	if err != nil {
		return nil, storage.Unavailable("list events", err)
	}
	defer rows.Close()

	out := []InboundEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, storage.Unavailable("scan event", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("iterate events", err)
	}
	return out, nil
}

// RecordDelivery stamps the outcome of a delivery attempt. A nil deliveryErr
// marks the event delivered; otherwise it is marked failed unless it was
// already delivered.
func (s *Store) RecordDelivery(ctx context.Context, id string, deliveryErr error) error {
	now := storage.FormatTime(s.now())

	var (
		res sql.Result
		err error
	)
	if deliveryErr == nil {
		res, err = s.db.ExecContext(ctx, s.dialect.Rebind(`
UPDATE inbound_events
SET status = ?, delivery_attempted = 1, delivered_at = ?, delivery_error = NULL, updated_at = ?
WHERE id = ?;
`), StatusDelivered, now, now, id)
	} else {
		res, err = s.db.ExecContext(ctx, s.dialect.Rebind(`
UPDATE inbound_events
SET status = ?, delivery_attempted = 1, delivery_error = ?, updated_at = ?
WHERE id = ? AND status <> ?;
`), StatusFailed, deliveryErr.Error(), now, id, StatusDelivered)
	}
	if err != nil {
		return storage.Unavailable("record delivery", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable("record delivery rows affected", err)
	}
	if n == 0 {
		// Either unknown, or a failure reported after a successful delivery.
		var one int
		err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT 1 FROM inbound_events WHERE id = ?;`), id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return storage.Unavailable("check event", err)
		}
		return nil
	}

	if deliveryErr == nil {
		s.hub.Publish(events.TypeEventDelivered, map[string]any{"event_id": id})
	} else {
		s.hub.Publish(events.TypeEventFailed, map[string]any{"event_id": id, "error": deliveryErr.Error()})
	}
	return nil
}

// PruneClaims deletes delivery claims older than olderThan.
func (s *Store) PruneClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := storage.FormatTime(s.now().Add(-olderThan))
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM delivery_claims WHERE claimed_at < ?;`), cutoff)
	if err != nil {
		return 0, storage.Unavailable("prune claims", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storage.Unavailable("prune claims rows affected", err)
	}
	return n, nil
}

const eventColumns = `id, message_id, source, from_id, client_id, slack_channel, text, body, channel,
  provider_timestamp, raw, raw_digest, status, delivery_attempted, created_at, updated_at, delivered_at, delivery_error`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*InboundEvent, error) {
	var (
		ev                                InboundEvent
		messageID, clientID, slackChannel sql.NullString
		providerTS, raw, rawDigest        sql.NullString
		statusS, createdAt, updatedAt     string
		deliveredAt, deliveryError        sql.NullString
		attempted                         int
	)
	if err := s.Scan(
		&ev.ID, &messageID, &ev.Source, &ev.From, &clientID, &slackChannel, &ev.Text, &ev.Body, &ev.Channel,
		&providerTS, &raw, &rawDigest, &statusS, &attempted, &createdAt, &updatedAt, &deliveredAt, &deliveryError,
	); err != nil {
		return nil, err
	}

	ev.MessageID = messageID.String
	if clientID.Valid {
		ev.ClientID = &clientID.String
	}
	ev.SlackChannel = slackChannel.String
	ev.ProviderTimestamp = providerTS.String
	if raw.Valid && raw.String != "" {
		ev.Raw = []byte(raw.String)
	}
	ev.RawDigest = rawDigest.String
	ev.Status = Status(statusS)
	ev.DeliveryAttempted = attempted != 0
	ev.CreatedAt = storage.ParseTime(createdAt)
	ev.UpdatedAt = storage.ParseTime(updatedAt)
	ev.DeliveredAt = storage.ParseNullTime(deliveredAt)
	if deliveryError.Valid {
		ev.DeliveryError = &deliveryError.String
	}
	return &ev, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
