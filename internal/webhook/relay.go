package webhook

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/courier/internal/directory"
	"github.com/mattjoyce/courier/internal/notify"
	"github.com/mattjoyce/courier/internal/store"
)

// SourceWhatsApp is the source and channel recorded for WhatsApp events.
const SourceWhatsApp = "whatsapp"

// Directory resolves senders to client entries.
type Directory interface {
	FindBySender(ctx context.Context, identifier string) (*directory.Entry, error)
}

// EventStore is the subset of store.Store used by the relay.
type EventStore interface {
	Claim(ctx context.Context, source, messageID string) (bool, error)
	Write(ctx context.Context, ev store.InboundEvent) (store.WriteResult, error)
	RecordDelivery(ctx context.Context, id string, deliveryErr error) error
}

// Relay turns a verified WhatsApp payload into stored events and Slack
// notifications.
type Relay struct {
	directory Directory
	store     EventStore
	formatter notify.Formatter
	sender    notify.Sender
	logger    *slog.Logger
}

func NewRelay(dir Directory, st EventStore, formatter notify.Formatter, sender notify.Sender, logger *slog.Logger) *Relay {
	return &Relay{
		directory: dir,
		store:     st,
		formatter: formatter,
		sender:    sender,
		logger:    logger.With("component", "relay"),
	}
}

// Process parses body and handles every message in it. Malformed payloads are
// logged and dropped.
func (r *Relay) Process(ctx context.Context, body []byte) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		r.logger.Warn("invalid webhook payload", "error", err, "body_bytes", len(body))
		return
	}
	if p.Object == "" || p.Entry == nil {
		r.logger.Warn("invalid webhook payload structure",
			"has_object", p.Object != "",
			"has_entry", p.Entry != nil,
		)
		return
	}

	digest := Digest(body)
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" || len(change.Value.Messages) == 0 {
				r.logger.Debug("skipping change", "field", change.Field)
				continue
			}
			for _, msg := range change.Value.Messages {
				if ctx.Err() != nil {
					r.logger.Warn("processing deadline reached, dropping remaining messages", "error", ctx.Err())
					return
				}
				r.processMessage(ctx, msg, change.Value, body, digest)
			}
		}
	}
}

func (r *Relay) processMessage(ctx context.Context, msg Message, value ChangeValue, body []byte, digest string) {
	logger := r.logger.With("message_id", msg.ID, "from", msg.From, "type", msg.Type)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic processing message", "panic", rec)
		}
	}()

	ev := r.buildEvent(msg, value, body, digest)

	entry, lookupErr := r.directory.FindBySender(ctx, msg.From)
	if lookupErr != nil {
		logger.Error("client lookup failed", "error", lookupErr)
	}

	claimed, err := r.store.Claim(ctx, SourceWhatsApp, msg.ID)
	switch {
	case err != nil:
		// The unique index on (source, message_id) still rejects a second record.
		logger.Error("delivery claim failed, continuing", "error", err)
	case !claimed:
		logger.Info("duplicate delivery ignored")
		return
	}

	if lookupErr != nil {
		// Leave it for the relay trigger, which retries with backoff.
		ev.Status = store.StatusPending
		res, err := r.store.Write(ctx, ev)
		if err != nil {
			logger.Error("failed to store event", "error", err)
			return
		}
		logger.Info("event stored for relay", "event_id", res.ID, "duplicate", res.Duplicate)
		return
	}

	if entry != nil {
		id := entry.ClientID
		ev.ClientID = &id
		logger = logger.With("client_id", id)
	} else {
		logger.Warn("unmapped sender")
	}

	n := r.formatter.Format(ev, entry)

	var (
		wg       sync.WaitGroup
		res      store.WriteResult
		writeErr error
		sendErr  error
	)
	wg.Go(func() {
		res, writeErr = r.store.Write(ctx, ev)
	})
	if n.Channel != "" {
		wg.Go(func() {
			sendErr = r.sender.Send(ctx, n)
		})
	} else {
		sendErr = notify.ErrNoChannel
		logger.Warn("no notification target for message")
	}
	wg.Wait()

	if writeErr != nil {
		logger.Error("failed to store event", "error", writeErr)
		if sendErr != nil && !errors.Is(sendErr, notify.ErrNoChannel) {
			logger.Error("slack notification failed", "channel", n.Channel, "error", sendErr)
		}
		return
	}

	logger = logger.With("event_id", res.ID)
	if res.Duplicate {
		logger.Info("event already stored")
		return
	}

	if sendErr != nil {
		if !errors.Is(sendErr, notify.ErrNoChannel) {
			logger.Error("slack notification failed", "channel", n.Channel, "error", sendErr)
		}
	} else {
		logger.Info("slack notification posted", "channel", n.Channel, "unmapped", n.Unmapped)
	}

	if err := r.store.RecordDelivery(ctx, res.ID, sendErr); err != nil {
		logger.Error("failed to record delivery", "error", err)
	}
}

func (r *Relay) buildEvent(msg Message, value ChangeValue, body []byte, digest string) store.InboundEvent {
	text := msg.Body()

	raw, err := json.Marshal(rawRecord{
		PhoneNumberID:      value.Metadata.PhoneNumberID,
		DisplayPhoneNumber: value.Metadata.DisplayPhoneNumber,
		ProfileName:        value.profileName(msg),
		MessageType:        msg.Type,
		FullPayload:        json.RawMessage(body),
	})
	if err != nil {
		r.logger.Warn("failed to encode raw record", "message_id", msg.ID, "error", err)
		raw = nil
	}

	return store.InboundEvent{
		MessageID:         msg.ID,
		Source:            SourceWhatsApp,
		From:              msg.From,
		Text:              text,
		Body:              text,
		Channel:           SourceWhatsApp,
		ProviderTimestamp: msg.Timestamp,
		Raw:               raw,
		RawDigest:         digest,
		Status:            store.StatusReceived,
	}
}

// Digest returns the "blake3:<hex>" digest of a webhook body.
func Digest(body []byte) string {
	sum := blake3.Sum256(body)
	return "blake3:" + hex.EncodeToString(sum[:])
}
