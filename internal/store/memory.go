// ABOUTME: In-memory implementation of the Store interface
// ABOUTME: Owns the conversation registry and per-conversation message sequences

package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// conversationState bundles a conversation with its message sequence and
// the next message ID to assign.
type conversationState struct {
	conv   *Conversation
	msgs   []*Message
	nextID int64
}

// MemoryStore is the in-memory Store. It exclusively owns the mapping from
// conversation ID to its message sequence. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]*conversationState
	order    []string // conversation IDs in insertion order
	activeID string
	now      func() time.Time
	logger   *slog.Logger
}

// NewMemoryStore creates an empty in-memory store. Pass nil logger for default.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		convs:  make(map[string]*conversationState),
		now:    time.Now,
		logger: logger.With("component", "store"),
	}
}

// ListConversations returns conversations in insertion order. The returned
// structs are copies; mutating them does not affect the store.
func (s *MemoryStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Conversation, 0, len(s.order))
	for _, id := range s.order {
		c := *s.convs[id].conv
		out = append(out, &c)
	}
	return out, nil
}

// GetConversation returns a copy of the conversation or ErrNotFound.
func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *state.conv
	return &c, nil
}

// CreateConversation registers a new conversation at the end of the list.
func (s *MemoryStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.convs[conv.ID]; exists {
		return ErrDuplicateConversation
	}
	c := *conv
	s.convs[conv.ID] = &conversationState{conv: &c, nextID: 1}
	s.order = append(s.order, conv.ID)
	s.logger.Debug("conversation created", "conversation_id", conv.ID)
	return nil
}

// DeleteConversation removes a conversation and its messages. Pending
// pipeline replies for it are discarded by their append-time existence check.
func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return ErrNotFound
	}
	delete(s.convs, id)
	for i, cid := range s.order {
		if cid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = ""
	}
	s.logger.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// SelectConversation sets the active conversation and resets its unread
// count. Selecting an unknown ID leaves the selection unchanged.
func (s *MemoryStore) SelectConversation(ctx context.Context, id string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := Selection{Previous: s.activeID, Current: s.activeID}
	state, ok := s.convs[id]
	if !ok {
		s.logger.Debug("select ignored for unknown conversation", "conversation_id", id)
		return sel, nil
	}
	s.activeID = id
	state.conv.UnreadCount = 0
	sel.Current = id
	return sel, nil
}

// ActiveConversation returns the currently selected conversation ID, or
// empty when nothing is selected.
func (s *MemoryStore) ActiveConversation(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID, nil
}

// AppendMessage stores a new message at the end of the conversation's
// sequence. The sequence is created if absent. Blank bodies are rejected
// with ErrEmptyBody and create nothing.
func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID string, draft Draft) (*Message, error) {
	draft, err := normalizeDraft(draft)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.convs[conversationID]
	if !ok {
		state = &conversationState{
			conv:   &Conversation{ID: conversationID, DisplayName: conversationID},
			nextID: 1,
		}
		s.convs[conversationID] = state
		s.order = append(s.order, conversationID)
	}

	now := s.now()
	msg := &Message{
		ID:             state.nextID,
		ConversationID: conversationID,
		Body:           draft.Body,
		CreatedAt:      now,
		CreatedAtLabel: TimeLabel(now),
		Direction:      draft.Direction,
		DeliveryState:  draft.DeliveryState,
		Kind:           draft.Kind,
		AttachmentRef:  draft.AttachmentRef,
		AttachmentName: draft.AttachmentName,
	}
	state.nextID++
	state.msgs = append(state.msgs, msg)

	state.conv.LastMessagePreview = preview(draft.Body)
	state.conv.LastActivityLabel = msg.CreatedAtLabel
	if draft.Direction == DirectionIncoming && s.activeID != conversationID {
		state.conv.UnreadCount++
	}

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"direction", msg.Direction)

	out := *msg
	return &out, nil
}

// MessagesFor returns the conversation's messages in creation order. A
// conversation with no messages yields an empty slice, not an error.
func (s *MemoryStore) MessagesFor(ctx context.Context, conversationID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.convs[conversationID]
	if !ok {
		return []*Message{}, nil
	}
	out := make([]*Message, 0, len(state.msgs))
	for _, m := range state.msgs {
		c := *m
		c.Reactions = append([]Reaction(nil), m.Reactions...)
		out = append(out, &c)
	}
	return out, nil
}

// ToggleReaction toggles the reactor's emoji on a message: added if absent
// for this reactor, removed if present.
func (s *MemoryStore) ToggleReaction(ctx context.Context, conversationID string, messageID int64, symbol, reactorID string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.convs[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	for _, m := range state.msgs {
		if m.ID == messageID {
			m.Reactions = toggleReaction(m.Reactions, symbol, reactorID)
			out := *m
			out.Reactions = append([]Reaction(nil), m.Reactions...)
			return &out, nil
		}
	}
	return nil, ErrMessageNotFound
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
