// ABOUTME: HTTP API for the chat frontend - conversations, messages, settings, voices
// ABOUTME: chi router with JSON handlers and SSE streaming of live messages

package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bechir-ai/chatd/internal/dedupe"
	"github.com/bechir-ai/chatd/internal/settings"
	"github.com/bechir-ai/chatd/internal/speech"
	"github.com/bechir-ai/chatd/internal/store"
)

const (
	idempotencyTTL     = 5 * time.Minute
	idempotencyMaxSize = 100_000
	heartbeatInterval  = 30 * time.Second
)

// VoiceLister exposes the synthesis voices the frontend can pick from.
// Satisfied by speech.Bridge.
type VoiceLister interface {
	ListVoices() []speech.Voice
}

// Server is the webchat HTTP API. It fronts the conversation service and
// the settings registry, renders assistant replies to HTML, and streams
// live messages over SSE.
type Server struct {
	conversations ConversationService
	settings      *settings.Registry
	voices        VoiceLister
	idempotency   *dedupe.Cache
	markdown      goldmark.Markdown
	logger        *slog.Logger
}

// ConversationService is the slice of the conversation layer the API uses
type ConversationService interface {
	ListConversations(ctx context.Context) ([]*store.Conversation, error)
	SelectConversation(ctx context.Context, id string) (store.Selection, error)
	MessagesFor(ctx context.Context, conversationID string) ([]*store.Message, error)
	Send(ctx context.Context, conversationID, body string) (*store.Message, error)
	ToggleReaction(ctx context.Context, conversationID string, messageID int64, symbol, reactorID string) (*store.Message, error)
	Subscribe(ctx context.Context, conversationID string) (<-chan *store.Message, string)
	Unsubscribe(conversationID, subID string)
}

// NewServer creates the webchat API server. voices may be nil when speech
// is unavailable. Pass nil logger for default.
func NewServer(svc ConversationService, registry *settings.Registry, voices VoiceLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		conversations: svc,
		settings:      registry,
		voices:        voices,
		idempotency:   dedupe.New(idempotencyTTL, idempotencyMaxSize),
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
		logger: logger.With("component", "webchat"),
	}
}

// Router builds the chi router for the API
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check, unauthenticated, used by probes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.handleListConversations)           // GET /api/conversations
			r.Post("/{id}/select", s.handleSelect)          // POST /api/conversations/{id}/select
			r.Get("/{id}/messages", s.handleListMessages)   // GET /api/conversations/{id}/messages
			r.Post("/{id}/messages", s.handleSendMessage)   // POST /api/conversations/{id}/messages
			r.Post("/{id}/messages/{messageID}/reactions", s.handleToggleReaction)
			r.Get("/{id}/events", s.handleEvents) // SSE stream
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handlePutSettings)
			r.Put("/profile", s.handlePutProfile)
			r.Put("/ai", s.handlePutAI)
			r.Put("/preferences", s.handlePutPreferences)
		})

		r.Get("/voices", s.handleListVoices)
	})

	return r
}

// Close releases the idempotency cache
func (s *Server) Close() {
	s.idempotency.Close()
}

// messagePayload is the wire shape of a message, augmented with the body
// rendered as HTML for assistant replies.
type messagePayload struct {
	*store.Message
	BodyHTML string `json:"body_html,omitempty"`
}

func (s *Server) toPayload(msg *store.Message) *messagePayload {
	p := &messagePayload{Message: msg}
	// Assistant replies arrive as markdown; render them for display
	if msg.Direction == store.DirectionIncoming {
		var buf bytes.Buffer
		if err := s.markdown.Convert([]byte(msg.Body), &buf); err != nil {
			s.logger.Warn("markdown rendering failed", "error", err)
		} else {
			p.BodyHTML = buf.String()
		}
	}
	return p
}

func (s *Server) toPayloads(msgs []*store.Message) []*messagePayload {
	out := make([]*messagePayload, len(msgs))
	for i, m := range msgs {
		out[i] = s.toPayload(m)
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses with a JSON body
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrEmptyBody):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.conversations.ListConversations(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sel, err := s.conversations.SelectConversation(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"previous": sel.Previous,
		"current":  sel.Current,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.conversations.MessagesFor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": s.toPayloads(msgs)})
}

type sendRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	// A retried POST with the same Idempotency-Key replays the original
	// message instead of creating a second one
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" {
		if prior := s.idempotency.Lookup(idemKey); prior != nil {
			s.writeJSON(w, http.StatusOK, map[string]any{"message": s.toPayload(prior), "replayed": true})
			return
		}
	}

	msg, err := s.conversations.Send(r.Context(), id, req.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if idemKey != "" {
		s.idempotency.Record(idemKey, msg)
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"message": s.toPayload(msg)})
}

func parseMessageID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

type reactionRequest struct {
	Symbol    string `json:"symbol"`
	ReactorID string `json:"reactor_id"`
}

func (s *Server) handleToggleReaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	messageID, err := parseMessageID(chi.URLParam(r, "messageID"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
		return
	}

	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Symbol == "" || req.ReactorID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol and reactor_id are required"})
		return
	}

	msg, err := s.conversations.ToggleReaction(r.Context(), id, messageID, req.Symbol, req.ReactorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": s.toPayload(msg)})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.settings.Save(next); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var profile settings.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.settings.SaveProfile(profile); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handlePutAI(w http.ResponseWriter, r *http.Request) {
	var ai settings.AI
	if err := json.NewDecoder(r.Body).Decode(&ai); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.settings.SaveAI(ai); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs settings.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.settings.SavePreferences(prefs); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if s.voices == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"available": false, "voices": []speech.Voice{}})
		return
	}
	voices := s.voices.ListVoices()
	if voices == nil {
		// Synthesis backend absent
		s.writeJSON(w, http.StatusOK, map[string]any{"available": false, "voices": []speech.Voice{}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"available": true, "voices": voices})
}

// handleEvents streams a conversation's messages over SSE
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, subID := s.conversations.Subscribe(r.Context(), id)
	defer s.conversations.Unsubscribe(id, subID)

	// Send initial connection event
	fmt.Fprintf(w, "event: connected\ndata: {\"conversation_id\": %q}\n\n", id)
	flusher.Flush()

	// Heartbeat keeps intermediaries from closing idle connections
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			// SSE comment as heartbeat to detect dead connections
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case msg, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(s.toPayload(msg))
			if err != nil {
				s.logger.Error("failed to marshal message", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
