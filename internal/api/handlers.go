package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/courier/internal/directory"
	"github.com/mattjoyce/courier/internal/store"
)

const maxRequestBody = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queue.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}

	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    depth,
	})
}

// handleSeedClient handles POST /api/admin/seed/client.
func (s *Server) handleSeedClient(w http.ResponseWriter, r *http.Request) {
	var req SeedClientRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entry, err := s.directory.Upsert(r.Context(), directory.Entry{
		ClientID:            req.ClientID,
		DisplayName:         req.DisplayName,
		NotificationChannel: req.NotificationChannel,
		FromIdentifiers:     req.FromIdentifiers,
	})
	var claimed *directory.SenderClaimedError
	switch {
	case errors.Is(err, directory.ErrInvalidEntry):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &claimed):
		s.logger.Warn("seed rejected: sender claimed by another client",
			"client_id", req.ClientID, "sender", claimed.Sender, "owner_client_id", claimed.OwnerClientID)
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("failed to seed client", "client_id", req.ClientID, "error", err)
		s.writeErrorDetails(w, http.StatusInternalServerError, "Failed to seed client", err)
		return
	}

	s.logger.Info("client seeded", "client_id", entry.ClientID, "senders", len(entry.FromIdentifiers))
	s.writeJSON(w, http.StatusOK, SeedClientResponse{
		Success: true,
		Message: "Client configuration created/updated",
		Data:    entry,
	})
}

// handleGetClient handles GET /api/admin/directory/{clientID}.
func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	entry, err := s.directory.Get(r.Context(), chi.URLParam(r, "clientID"))
	if errors.Is(err, directory.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "client not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load client", "error", err)
		s.writeErrorDetails(w, http.StatusInternalServerError, "Failed to load client", err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// handleTestClientMessage handles POST /api/admin/test/client-message. It
// stores an event directly, which then flows through the relay trigger.
func (s *Server) handleTestClientMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var echo map[string]any
	if err := json.Unmarshal(body, &echo); err != nil || echo == nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var req TestMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	clientID, ok := parseClientID(req.ClientID)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "clientId is required (can be null)")
		return
	}
	if req.Source == "" {
		s.writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	status := store.Status(req.Status)
	if status == "" {
		status = store.StatusPending
	}
	if !status.Valid() {
		s.writeError(w, http.StatusBadRequest, "status must be one of received, pending, delivered, failed")
		return
	}
	ev := store.InboundEvent{
		MessageID:         req.MessageID,
		Source:            req.Source,
		From:              req.From,
		ClientID:          clientID,
		SlackChannel:      req.SlackChannel,
		Text:              req.Text,
		Body:              req.Body,
		Channel:           req.Channel,
		ProviderTimestamp: req.Timestamp,
		Status:            status,
	}
	if len(req.Raw) > 0 && !bytes.Equal(req.Raw, []byte("null")) {
		ev.Raw = req.Raw
	}

	res, err := s.store.Write(r.Context(), ev)
	if err != nil {
		s.logger.Error("failed to create client message", "source", req.Source, "error", err)
		s.writeErrorDetails(w, http.StatusInternalServerError, "Failed to create client message", err)
		return
	}

	message := "Client message created"
	if res.Duplicate {
		message = "Client message already exists"
	}
	echo["messageId"] = res.ID
	s.writeJSON(w, http.StatusOK, TestMessageResponse{
		Success:   true,
		Message:   message,
		MessageID: res.ID,
		Data:      echo,
	})
}

// parseClientID accepts null or a non-empty string. An absent key, an empty
// string or any other JSON type is rejected.
func parseClientID(raw json.RawMessage) (*string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, true
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		return nil, false
	}
	return &id, true
}

// handleGetEvent handles GET /api/admin/events/{eventID}.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.Get(r.Context(), chi.URLParam(r, "eventID"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load event", "error", err)
		s.writeErrorDetails(w, http.StatusInternalServerError, "Failed to load event", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ev)
}

// handleOpenAPI handles GET /api/admin/openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) writeErrorDetails(w http.ResponseWriter, status int, message string, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: message, Details: err.Error()})
}
