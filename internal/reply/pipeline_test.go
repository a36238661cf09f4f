// ABOUTME: Tests for the reply pipeline
// ABOUTME: Verifies reply ordering under latency inversion, error-as-message, and deletion guard

package reply

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bechir-ai/chatd/internal/completion"
	"github.com/bechir-ai/chatd/internal/store"
)

// scriptedStrategy replies with preset answers, with optional per-call delay
type scriptedStrategy struct {
	calls   atomic.Int32
	replies []string
	delays  []time.Duration
	err     error
}

func (s *scriptedStrategy) Reply(ctx context.Context, conversationID, message string) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.delays) {
		select {
		case <-time.After(s.delays[n]):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	if n < len(s.replies) {
		return s.replies[n], nil
	}
	return "réponse", nil
}

func newTestPipeline(t *testing.T, strategy Strategy, hook ReplyHook) (*Pipeline, *store.MemoryStore) {
	st := store.NewMemoryStore(nil)
	require.NoError(t, st.CreateConversation(context.Background(), &store.Conversation{ID: "1", DisplayName: "Test"}))
	p := New(st, strategy, hook, nil)
	t.Cleanup(p.Close)
	return p, st
}

func sendUser(t *testing.T, st *store.MemoryStore, p *Pipeline, body string) *store.Message {
	t.Helper()
	msg, err := st.AppendMessage(context.Background(), "1", store.Draft{Body: body})
	require.NoError(t, err)
	p.Dispatch(msg)
	return msg
}

func waitForMessages(t *testing.T, st *store.MemoryStore, conversationID string, n int) []*store.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := st.MessagesFor(context.Background(), conversationID)
		require.NoError(t, err)
		if len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("conversation %s never reached %d messages", conversationID, n)
	return nil
}

func TestPipeline_AppendsExactlyOneReply(t *testing.T) {
	strategy := &scriptedStrategy{replies: []string{"Bonjour, que puis-je faire ?"}}
	p, st := newTestPipeline(t, strategy, nil)

	sendUser(t, st, p, "Salut")
	msgs := waitForMessages(t, st, "1", 2)

	require.Len(t, msgs, 2)
	assert.Equal(t, "Salut", msgs[0].Body)
	assert.Equal(t, store.DirectionOutgoing, msgs[0].Direction)
	assert.Equal(t, store.DeliverySent, msgs[0].DeliveryState)
	assert.Equal(t, "Bonjour, que puis-je faire ?", msgs[1].Body)
	assert.Equal(t, store.DirectionIncoming, msgs[1].Direction)

	// No extra reply shows up later
	time.Sleep(50 * time.Millisecond)
	msgs, err := st.MessagesFor(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestPipeline_RepliesKeepRequestOrder(t *testing.T) {
	// First request is slow, second fast; replies must still land in
	// request order thanks to per-conversation serialization.
	strategy := &scriptedStrategy{
		replies: []string{"première réponse", "seconde réponse"},
		delays:  []time.Duration{80 * time.Millisecond, 0},
	}
	p, st := newTestPipeline(t, strategy, nil)

	sendUser(t, st, p, "premier message")
	sendUser(t, st, p, "second message")

	msgs := waitForMessages(t, st, "1", 4)
	var replies []string
	for _, m := range msgs {
		if m.Direction == store.DirectionIncoming {
			replies = append(replies, m.Body)
		}
	}
	assert.Equal(t, []string{"première réponse", "seconde réponse"}, replies)
}

func TestPipeline_ConversationsAreIndependent(t *testing.T) {
	strategy := &scriptedStrategy{
		replies: []string{"ok", "ok"},
		delays:  []time.Duration{100 * time.Millisecond, 0},
	}
	p, st := newTestPipeline(t, strategy, nil)
	require.NoError(t, st.CreateConversation(context.Background(), &store.Conversation{ID: "2", DisplayName: "Autre"}))

	// Slow request on conversation 1 must not delay conversation 2
	msg1, err := st.AppendMessage(context.Background(), "1", store.Draft{Body: "lent"})
	require.NoError(t, err)
	p.Dispatch(msg1)

	msg2, err := st.AppendMessage(context.Background(), "2", store.Draft{Body: "rapide"})
	require.NoError(t, err)
	start := time.Now()
	p.Dispatch(msg2)

	waitForMessages(t, st, "2", 2)
	assert.Less(t, time.Since(start), 90*time.Millisecond,
		"conversation 2 should not wait behind conversation 1")
	waitForMessages(t, st, "1", 2)
}

func TestPipeline_ErrorBecomesChatMessage(t *testing.T) {
	strategy := &scriptedStrategy{err: &completion.RateLimitError{}}
	p, st := newTestPipeline(t, strategy, nil)

	sendUser(t, st, p, "Salut")
	msgs := waitForMessages(t, st, "1", 2)

	assert.Equal(t, store.DirectionIncoming, msgs[1].Direction)
	assert.Equal(t, "Limite de requêtes atteinte. Veuillez réessayer plus tard.", msgs[1].Body)
}

func TestPipeline_UnknownErrorGetsGenericMessage(t *testing.T) {
	strategy := &scriptedStrategy{err: assert.AnError}
	p, st := newTestPipeline(t, strategy, nil)

	sendUser(t, st, p, "Salut")
	msgs := waitForMessages(t, st, "1", 2)
	assert.Equal(t, fallbackErrorReply, msgs[1].Body)
}

func TestPipeline_DiscardsReplyForDeletedConversation(t *testing.T) {
	strategy := &scriptedStrategy{delays: []time.Duration{50 * time.Millisecond}}
	p, st := newTestPipeline(t, strategy, nil)

	sendUser(t, st, p, "Salut")
	require.NoError(t, st.DeleteConversation(context.Background(), "1"))

	time.Sleep(150 * time.Millisecond)
	msgs, err := st.MessagesFor(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, msgs, "reply must not resurrect a deleted conversation")
}

func TestPipeline_HookObservesReplies(t *testing.T) {
	var hooked atomic.Int32
	strategy := &scriptedStrategy{replies: []string{"ok"}}
	p, st := newTestPipeline(t, strategy, func(msg *store.Message) {
		assert.Equal(t, store.DirectionIncoming, msg.Direction)
		hooked.Add(1)
	})

	sendUser(t, st, p, "Salut")
	waitForMessages(t, st, "1", 2)
	assert.Eventually(t, func() bool { return hooked.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLocalEchoStrategy_CannedReply(t *testing.T) {
	s := &LocalEchoStrategy{Delay: time.Millisecond}
	got, err := s.Reply(context.Background(), "1", "n'importe quoi")
	require.NoError(t, err)
	assert.Equal(t, LocalEchoReply, got)
}

func TestAutoStrategy_FallsBackWithoutKey(t *testing.T) {
	client := completion.NewClient(completion.Config{}, nil)
	s := &AutoStrategy{
		Completion: &CompletionStrategy{Client: client},
		Echo:       &LocalEchoStrategy{Delay: time.Millisecond},
	}

	got, err := s.Reply(context.Background(), "1", "Salut")
	require.NoError(t, err)
	assert.Equal(t, LocalEchoReply, got, "no key configured means the echo fallback answers")
}
