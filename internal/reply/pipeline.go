// ABOUTME: Asynchronous reply pipeline with per-conversation serialized dispatch
// ABOUTME: Turns each outgoing message into exactly one incoming reply or error message

package reply

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bechir-ai/chatd/internal/completion"
	"github.com/bechir-ai/chatd/internal/store"
)

const (
	// jobBufferSize is the per-conversation queue depth. Matches the
	// broadcaster's subscriber buffer.
	jobBufferSize = 64

	// replyTimeout caps one strategy invocation
	replyTimeout = 2 * time.Minute
)

// fallbackErrorReply is shown when a strategy fails with an error that
// carries no localized message of its own
const fallbackErrorReply = "Erreur lors de la communication avec l'IA. Réessayez plus tard."

// MessageStore is what the pipeline needs from storage
type MessageStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, draft store.Draft) (*store.Message, error)
}

// ReplyHook observes every appended reply (success or error-as-message)
type ReplyHook func(msg *store.Message)

type job struct {
	conversationID string
	body           string
}

// Pipeline dispatches reply work per conversation. One worker goroutine
// per conversation guarantees replies land in the order their triggering
// messages were issued; different conversations proceed concurrently.
type Pipeline struct {
	store    MessageStore
	strategy Strategy
	hook     ReplyHook
	logger   *slog.Logger

	mu     sync.Mutex
	queues map[string]chan job
	closed bool
	wg     sync.WaitGroup
}

// New creates a pipeline. The hook may be nil. Pass nil logger for default.
func New(messageStore MessageStore, strategy Strategy, hook ReplyHook, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    messageStore,
		strategy: strategy,
		hook:     hook,
		logger:   logger.With("component", "reply"),
		queues:   make(map[string]chan job),
	}
}

// Dispatch enqueues reply work for a just-appended outgoing message and
// returns immediately. The reply is appended asynchronously; a conversation
// with a request already in flight queues behind it.
func (p *Pipeline) Dispatch(msg *store.Message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	q, ok := p.queues[msg.ConversationID]
	if !ok {
		q = make(chan job, jobBufferSize)
		p.queues[msg.ConversationID] = q
		p.wg.Add(1)
		go p.worker(msg.ConversationID, q)
	}
	p.mu.Unlock()

	select {
	case q <- job{conversationID: msg.ConversationID, body: msg.Body}:
	default:
		// Queue saturated; drop rather than block the send path
		p.logger.Warn("reply queue full, dropping request",
			"conversation_id", msg.ConversationID)
	}
}

// worker processes one conversation's jobs sequentially
func (p *Pipeline) worker(conversationID string, q <-chan job) {
	defer p.wg.Done()
	for j := range q {
		p.process(j)
	}
}

// process runs the strategy and appends exactly one incoming message.
// Uses a detached context: the reply must land even though the send call
// that triggered it has long since returned.
func (p *Pipeline) process(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	body, err := p.strategy.Reply(ctx, j.conversationID, j.body)
	if err != nil {
		body = userFacingMessage(err)
		p.logger.Error("reply strategy failed",
			"error", err,
			"conversation_id", j.conversationID)
	}

	// The conversation may have been deleted while the request was in
	// flight; discard the reply instead of resurrecting it.
	if _, err := p.store.GetConversation(ctx, j.conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Debug("discarding reply for deleted conversation",
				"conversation_id", j.conversationID)
			return
		}
		p.logger.Error("conversation lookup failed", "error", err,
			"conversation_id", j.conversationID)
		return
	}

	appended, err := p.store.AppendMessage(ctx, j.conversationID, store.Draft{
		Body:      body,
		Direction: store.DirectionIncoming,
	})
	if err != nil {
		p.logger.Error("failed to append reply",
			"error", err,
			"conversation_id", j.conversationID)
		return
	}

	p.logger.Debug("reply appended",
		"conversation_id", j.conversationID,
		"message_id", appended.ID)

	if p.hook != nil {
		p.hook(appended)
	}
}

// Close stops accepting work and waits for in-flight replies to finish
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// userFacingMessage extracts the localized message from taxonomy errors,
// falling back to a generic one for anything else (timeouts, store errors)
func userFacingMessage(err error) string {
	var uf completion.UserFacing
	if errors.As(err, &uf) {
		return uf.UserFacingMessage()
	}
	return fallbackErrorReply
}
