// ABOUTME: Pluggable reply strategies for the pipeline
// ABOUTME: CompletionStrategy calls the hosted API; LocalEchoStrategy is the offline fallback

package reply

import (
	"context"
	"time"

	"github.com/bechir-ai/chatd/internal/completion"
)

// Strategy produces exactly one assistant reply for an outgoing message
type Strategy interface {
	Reply(ctx context.Context, conversationID, message string) (string, error)
}

// LocalEchoReply is the canned response used when no completion backend
// is configured.
const LocalEchoReply = "Merci pour votre message ! Je traite votre demande et vous réponds dans quelques instants."

// LocalEchoDelay simulates the assistant thinking before the canned reply
const LocalEchoDelay = time.Second

// CompletionStrategy forwards the message to the completion client
type CompletionStrategy struct {
	Client *completion.Client
}

func (s *CompletionStrategy) Reply(ctx context.Context, conversationID, message string) (string, error) {
	return s.Client.Send(ctx, message)
}

// LocalEchoStrategy answers every message with the canned reply after a
// fixed delay. Never fails.
type LocalEchoStrategy struct {
	Delay time.Duration
}

func (s *LocalEchoStrategy) Reply(ctx context.Context, conversationID, message string) (string, error) {
	delay := s.Delay
	if delay == 0 {
		delay = LocalEchoDelay
	}
	select {
	case <-time.After(delay):
		return LocalEchoReply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AutoStrategy picks CompletionStrategy when an API key is configured and
// falls back to LocalEchoStrategy otherwise. The choice is re-evaluated on
// every reply, so saving a key in settings takes effect immediately.
type AutoStrategy struct {
	Completion *CompletionStrategy
	Echo       *LocalEchoStrategy
}

func (s *AutoStrategy) Reply(ctx context.Context, conversationID, message string) (string, error) {
	if s.Completion != nil && s.Completion.Client.Configured() {
		return s.Completion.Reply(ctx, conversationID, message)
	}
	return s.Echo.Reply(ctx, conversationID, message)
}
