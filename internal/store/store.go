// ABOUTME: Store interface and data types for bechir-chatd conversation state
// ABOUTME: Defines Conversation, Message, Reaction structs and the Store contract

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = errors.New("conversation not found")

// ErrMessageNotFound is returned when a requested message does not exist
var ErrMessageNotFound = errors.New("message not found")

// ErrEmptyBody is returned when a draft body is empty after trimming.
// Callers treat this as a rejection: no message is created.
var ErrEmptyBody = errors.New("message body is empty")

// ErrDuplicateConversation is returned when creating a conversation whose ID already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Message directions
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// Delivery states, meaningful only for outgoing messages
const (
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
)

// Message kinds
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
	KindVoice = "voice"
)

// Conversation is a named thread of messages with one counterpart
type Conversation struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"display_name"`
	AvatarRef          string `json:"avatar_ref,omitempty"`
	LastMessagePreview string `json:"last_message_preview"`
	LastActivityLabel  string `json:"last_activity_label"`
	UnreadCount        int    `json:"unread_count"`
	IsOnline           bool   `json:"is_online"`
}

// Reaction is an emoji reaction aggregated across reactors.
// Symbols are unique per message; ReactorIDs holds who reacted.
type Reaction struct {
	Symbol     string   `json:"symbol"`
	Count      int      `json:"count"`
	ReactorIDs []string `json:"reactor_ids"`
}

// Message is a single message within a conversation. IDs are assigned by
// the store and are strictly increasing within their conversation.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedAtLabel string     `json:"created_at_label"`
	Direction      string     `json:"direction"`
	DeliveryState  string     `json:"delivery_state,omitempty"`
	Kind           string     `json:"kind"`
	AttachmentRef  string     `json:"attachment_ref,omitempty"`
	AttachmentName string     `json:"attachment_name,omitempty"`
	Reactions      []Reaction `json:"reactions,omitempty"`
}

// Draft is the caller-supplied part of a new message. The store assigns
// the ID and timestamp label.
type Draft struct {
	Body           string
	Direction      string
	DeliveryState  string
	Kind           string
	AttachmentRef  string
	AttachmentName string
}

// Selection reports the previous and new active conversation after a
// SelectConversation call.
type Selection struct {
	Previous string
	Current  string
}

// Store defines the interface for conversation and message state.
// Implementations: MemoryStore (default) and SQLiteStore (durable).
type Store interface {
	// Conversations
	ListConversations(ctx context.Context) ([]*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	CreateConversation(ctx context.Context, conv *Conversation) error
	DeleteConversation(ctx context.Context, id string) error

	// SelectConversation sets the active conversation and clears its unread
	// count. Unknown IDs are a silent no-op: the selection is unchanged and
	// no error is returned.
	SelectConversation(ctx context.Context, id string) (Selection, error)
	ActiveConversation(ctx context.Context) (string, error)

	// Messages
	AppendMessage(ctx context.Context, conversationID string, draft Draft) (*Message, error)
	MessagesFor(ctx context.Context, conversationID string) ([]*Message, error)

	// ToggleReaction adds the reactor's reaction if absent and removes it if
	// present. A reaction entry whose count reaches zero is dropped.
	ToggleReaction(ctx context.Context, conversationID string, messageID int64, symbol, reactorID string) (*Message, error)

	// Close releases any resources held by the store
	Close() error
}

// normalizeDraft trims the body and fills in defaults. Returns ErrEmptyBody
// when nothing remains after trimming.
func normalizeDraft(draft Draft) (Draft, error) {
	draft.Body = strings.TrimSpace(draft.Body)
	if draft.Body == "" {
		return Draft{}, ErrEmptyBody
	}
	if draft.Direction == "" {
		draft.Direction = DirectionOutgoing
	}
	if draft.Kind == "" {
		draft.Kind = KindText
	}
	if draft.Direction == DirectionOutgoing && draft.DeliveryState == "" {
		draft.DeliveryState = DeliverySent
	}
	if draft.Direction == DirectionIncoming {
		draft.DeliveryState = ""
	}
	return draft, nil
}

// TimeLabel formats a timestamp the way the chat UI displays it (24h HH:MM)
func TimeLabel(t time.Time) string {
	return t.Format("15:04")
}

// preview shortens a message body for the conversation list
func preview(body string) string {
	const max = 80
	if len(body) <= max {
		return body
	}
	return body[:max-1] + "…"
}

// toggleReaction applies toggle semantics to a message's reaction list.
// Returns the updated list.
func toggleReaction(reactions []Reaction, symbol, reactorID string) []Reaction {
	for i := range reactions {
		if reactions[i].Symbol != symbol {
			continue
		}
		for j, id := range reactions[i].ReactorIDs {
			if id == reactorID {
				// Second toggle by the same reactor removes the reaction
				reactions[i].ReactorIDs = append(reactions[i].ReactorIDs[:j], reactions[i].ReactorIDs[j+1:]...)
				reactions[i].Count--
				if reactions[i].Count <= 0 {
					return append(reactions[:i], reactions[i+1:]...)
				}
				return reactions
			}
		}
		reactions[i].ReactorIDs = append(reactions[i].ReactorIDs, reactorID)
		reactions[i].Count++
		return reactions
	}
	return append(reactions, Reaction{Symbol: symbol, Count: 1, ReactorIDs: []string{reactorID}})
}
