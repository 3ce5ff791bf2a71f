// Package directory maps sender identifiers to client records and their
// Slack notification channel.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/courier/internal/storage"
)

// Entry is one client record.
type Entry struct {
	ClientID            string    `json:"clientId"`
	DisplayName         string    `json:"displayName"`
	NotificationChannel string    `json:"notificationChannel"`
	FromIdentifiers     []string  `json:"fromIdentifiers"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

var (
	ErrNotFound      = errors.New("client not found")
	ErrInvalidEntry  = errors.New("invalid directory entry")
	ErrSenderClaimed = errors.New("sender already claimed by another client")
)

// SenderClaimedError reports which client already owns a sender.
type SenderClaimedError struct {
	Sender        string
	OwnerClientID string
}

func (e *SenderClaimedError) Error() string {
	return fmt.Sprintf("sender %q already claimed by client %q", e.Sender, e.OwnerClientID)
}

func (e *SenderClaimedError) Is(target error) bool {
	return target == ErrSenderClaimed
}

// Directory is the SQL-backed client directory.
type Directory struct {
	db      *sql.DB
	dialect storage.Dialect
	logger  *slog.Logger
	now     func() time.Time
}

func New(db *sql.DB, dialect storage.Dialect, logger *slog.Logger) *Directory {
	return &Directory{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "directory"),
		now:     time.Now,
	}
}

// NormalizeSender canonicalizes a phone-style identifier: surrounding
// whitespace and a leading '+' are dropped.
func NormalizeSender(identifier string) string {
	return strings.TrimPrefix(strings.TrimSpace(identifier), "+")
}

// FindBySender returns the entry whose sender list contains identifier, or
// (nil, nil) when there is none. With several matches the lowest client id
// wins and the conflict is logged.
func (d *Directory) FindBySender(ctx context.Context, identifier string) (*Entry, error) {
	sender := NormalizeSender(identifier)
	if sender == "" {
		return nil, nil
	}

	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(`
SELECT c.client_id, c.display_name, c.notification_channel, c.created_at, c.updated_at
FROM client_senders s
JOIN client_directory c ON c.client_id = s.client_id
WHERE s.sender = ?
ORDER BY c.client_id ASC;
`), sender)
	if err != nil {
		return nil, storage.Unavailable("find client by sender", err)
	}

	var matches []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			_ = rows.Close()
			return nil, storage.Unavailable("scan client", err)
		}
		matches = append(matches, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, storage.Unavailable("iterate clients", err)
	}
	_ = rows.Close()

	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ClientID
		}
		d.logger.Warn("routing ambiguity: sender claimed by multiple clients",
			"sender", sender,
			"client_ids", ids,
			"chosen", ids[0],
		)
	}

	entry := matches[0]
	senders, err := d.senders(ctx, entry.ClientID)
	if err != nil {
		return nil, err
	}
	entry.FromIdentifiers = senders
	return &entry, nil
}

// Get returns the entry for clientID or ErrNotFound.
func (d *Directory) Get(ctx context.Context, clientID string) (*Entry, error) {
	row := d.db.QueryRowContext(ctx, d.dialect.Rebind(`
SELECT client_id, display_name, notification_channel, created_at, updated_at
FROM client_directory
WHERE client_id = ?;
`), clientID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storage.Unavailable("get client", err)
	}

	senders, err := d.senders(ctx, clientID)
	if err != nil {
		return nil, err
	}
	e.FromIdentifiers = senders
	return &e, nil
}

// List returns every entry ordered by client id.
func (d *Directory) List(ctx context.Context) ([]Entry, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT client_id, display_name, notification_channel, created_at, updated_at
FROM client_directory
ORDER BY client_id ASC;
`)
	if err != nil {
		return nil, storage.Unavailable("list clients", err)
	}
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			_ = rows.Close()
			return nil, storage.Unavailable("scan client", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, storage.Unavailable("iterate clients", err)
	}
	_ = rows.Close()

	senderRows, err := d.db.QueryContext(ctx, `SELECT client_id, sender FROM client_senders ORDER BY client_id, sender;`)
	if err != nil {
		return nil, storage.Unavailable("list senders", err)
	}
	defer senderRows.Close()

	byClient := make(map[string][]string)
	for senderRows.Next() {
		var clientID, sender string
		if err := senderRows.Scan(&clientID, &sender); err != nil {
			return nil, storage.Unavailable("scan sender", err)
		}
		byClient[clientID] = append(byClient[clientID], sender)
	}
	if err := senderRows.Err(); err != nil {
		return nil, storage.Unavailable("iterate senders", err)
	}

	for i := range out {
		out[i].FromIdentifiers = nonNil(byClient[out[i].ClientID])
	}
	return out, nil
}

// Upsert creates or replaces an entry. The sender list is replaced wholesale
// and created_at is preserved for existing clients.
func (d *Directory) Upsert(ctx context.Context, e Entry) (Entry, error) {
	e.ClientID = strings.TrimSpace(e.ClientID)
	e.NotificationChannel = strings.TrimSpace(e.NotificationChannel)
	if e.ClientID == "" {
		return Entry{}, fmt.Errorf("%w: clientId is required", ErrInvalidEntry)
	}
	if e.NotificationChannel == "" {
		return Entry{}, fmt.Errorf("%w: notificationChannel is required", ErrInvalidEntry)
	}
	e.FromIdentifiers = normalizeSenders(e.FromIdentifiers)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, storage.Unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, sender := range e.FromIdentifiers {
		var owner string
		err := tx.QueryRowContext(ctx, d.dialect.Rebind(`
SELECT client_id FROM client_senders WHERE sender = ? AND client_id <> ? LIMIT 1;
`), sender, e.ClientID).Scan(&owner)
		if err == nil {
			return Entry{}, &SenderClaimedError{Sender: sender, OwnerClientID: owner}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Entry{}, storage.Unavailable("check sender ownership", err)
		}
	}

	now := d.now().UTC()
	createdAt := now
	var createdAtS string
	err = tx.QueryRowContext(ctx, d.dialect.Rebind(`SELECT created_at FROM client_directory WHERE client_id = ?;`), e.ClientID).Scan(&createdAtS)
	switch {
	case err == nil:
		createdAt = storage.ParseTime(createdAtS)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return Entry{}, storage.Unavailable("load client", err)
	}

	_, err = tx.ExecContext(ctx, d.dialect.Rebind(`
INSERT INTO client_directory(client_id, display_name, notification_channel, created_at, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(client_id) DO UPDATE SET
  display_name = excluded.display_name,
  notification_channel = excluded.notification_channel,
  updated_at = excluded.updated_at;
`), e.ClientID, e.DisplayName, e.NotificationChannel, storage.FormatTime(createdAt), storage.FormatTime(now))
	if err != nil {
		return Entry{}, storage.Unavailable("upsert client", err)
	}

	if _, err := tx.ExecContext(ctx, d.dialect.Rebind(`DELETE FROM client_senders WHERE client_id = ?;`), e.ClientID); err != nil {
		return Entry{}, storage.Unavailable("clear senders", err)
	}
	for _, sender := range e.FromIdentifiers {
		if _, err := tx.ExecContext(ctx, d.dialect.Rebind(`INSERT INTO client_senders(sender, client_id) VALUES(?, ?);`), sender, e.ClientID); err != nil {
			return Entry{}, storage.Unavailable("insert sender", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, storage.Unavailable("commit tx", err)
	}

	e.CreatedAt = createdAt
	e.UpdatedAt = now
	d.logger.Info("client upserted", "client_id", e.ClientID, "senders", len(e.FromIdentifiers))
	return e, nil
}

func (d *Directory) senders(ctx context.Context, clientID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(`SELECT sender FROM client_senders WHERE client_id = ? ORDER BY sender;`), clientID)
	if err != nil {
		return nil, storage.Unavailable("load senders", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storage.Unavailable("scan sender", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("iterate senders", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                    Entry
		createdAt, updatedAt string
	)
	if err := s.Scan(&e.ClientID, &e.DisplayName, &e.NotificationChannel, &createdAt, &updatedAt); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = storage.ParseTime(createdAt)
	e.UpdatedAt = storage.ParseTime(updatedAt)
	return e, nil
}

func normalizeSenders(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		n := NormalizeSender(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
