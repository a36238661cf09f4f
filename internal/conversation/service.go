// ABOUTME: Session service coordinating store, reply pipeline and broadcaster
// ABOUTME: All sends flow through here - the store is the source of truth, not a side effect

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bechir-ai/chatd/internal/reply"
	"github.com/bechir-ai/chatd/internal/settings"
	"github.com/bechir-ai/chatd/internal/store"
)

// Announcer speaks incoming replies aloud when auto-speech is enabled.
// Satisfied by speech.Bridge.
type Announcer interface {
	Speak(ctx context.Context, text, voiceHint string) error
}

// Service is the central conversation layer. It records the outgoing
// message first, then triggers the reply pipeline, and publishes every
// appended message to subscribers.
type Service struct {
	store       store.Store
	pipeline    *reply.Pipeline
	broadcaster *EventBroadcaster
	settings    *settings.Registry
	announcer   Announcer
	logger      *slog.Logger
}

// New creates a Service and its owned pipeline. announcer may be nil.
// Pass nil logger for default.
func New(st store.Store, strategy reply.Strategy, registry *settings.Registry, announcer Announcer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:       st,
		broadcaster: NewEventBroadcaster(logger),
		settings:    registry,
		announcer:   announcer,
		logger:      logger.With("component", "conversation"),
	}
	s.pipeline = reply.New(st, strategy, s.handleReply, logger)
	return s
}

// Send records the user's message and triggers the reply pipeline.
// Returns the stored message immediately; the reply arrives asynchronously.
// Blank bodies are rejected with store.ErrEmptyBody and nothing happens.
func (s *Service) Send(ctx context.Context, conversationID, body string) (*store.Message, error) {
	msg, err := s.store.AppendMessage(ctx, conversationID, store.Draft{
		Body:      body,
		Direction: store.DirectionOutgoing,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("user message recorded",
		"conversation_id", conversationID,
		"message_id", msg.ID)

	s.broadcaster.Publish(msg)
	s.pipeline.Dispatch(msg)
	return msg, nil
}

// handleReply publishes pipeline output and optionally speaks it aloud
func (s *Service) handleReply(msg *store.Message) {
	s.broadcaster.Publish(msg)

	if s.announcer == nil || s.settings == nil {
		return
	}
	if !s.settings.Current().Preferences.AutoSpeech {
		return
	}
	go func() {
		if err := s.announcer.Speak(context.Background(), msg.Body, ""); err != nil {
			s.logger.Debug("auto-speech failed", "error", err)
		}
	}()
}

// ListConversations returns all conversations in insertion order
func (s *Service) ListConversations(ctx context.Context) ([]*store.Conversation, error) {
	return s.store.ListConversations(ctx)
}

// SelectConversation switches the active conversation. Unknown IDs leave
// the selection unchanged; the returned Selection reports both states.
func (s *Service) SelectConversation(ctx context.Context, id string) (store.Selection, error) {
	return s.store.SelectConversation(ctx, id)
}

// MessagesFor returns a conversation's messages in creation order
func (s *Service) MessagesFor(ctx context.Context, conversationID string) ([]*store.Message, error) {
	return s.store.MessagesFor(ctx, conversationID)
}

// ToggleReaction toggles a reactor's emoji on a message and publishes the
// updated message so other clients see the change.
func (s *Service) ToggleReaction(ctx context.Context, conversationID string, messageID int64, symbol, reactorID string) (*store.Message, error) {
	msg, err := s.store.ToggleReaction(ctx, conversationID, messageID, symbol, reactorID)
	if err != nil {
		return nil, fmt.Errorf("toggling reaction: %w", err)
	}
	s.broadcaster.Publish(msg)
	return msg, nil
}

// Subscribe streams every message appended to the conversation
func (s *Service) Subscribe(ctx context.Context, conversationID string) (<-chan *store.Message, string) {
	return s.broadcaster.Subscribe(ctx, conversationID)
}

// Unsubscribe removes a subscription created by Subscribe
func (s *Service) Unsubscribe(conversationID, subID string) {
	s.broadcaster.Unsubscribe(conversationID, subID)
}

// Close drains the pipeline and shuts down the broadcaster
func (s *Service) Close() {
	s.pipeline.Close()
	s.broadcaster.Close()
}
