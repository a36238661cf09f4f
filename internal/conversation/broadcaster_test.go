// ABOUTME: Tests for the message broadcaster
// ABOUTME: Verifies fan-out, slow-subscriber drops, and context cleanup

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bechir-ai/chatd/internal/store"
)

func testMessage(conversationID string, id int64) *store.Message {
	return &store.Message{
		ID:             id,
		ConversationID: conversationID,
		Body:           "test",
		Direction:      store.DirectionIncoming,
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()
	ch1, _ := b.Subscribe(ctx, "1")
	ch2, _ := b.Subscribe(ctx, "1")
	other, _ := b.Subscribe(ctx, "2")

	b.Publish(testMessage("1", 1))

	assert.Equal(t, int64(1), (<-ch1).ID)
	assert.Equal(t, int64(1), (<-ch2).ID)
	select {
	case <-other:
		t.Fatal("subscriber of another conversation must not receive the message")
	default:
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background(), "1")
	b.Unsubscribe("1", subID)

	_, open := <-ch
	assert.False(t, open)

	// Publishing afterwards must not panic
	b.Publish(testMessage("1", 1))
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "1")
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background(), "1")
	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish(testMessage("1", int64(i)))
	}

	// Buffer holds the first subscriberBufferSize messages; the rest were dropped
	assert.Len(t, ch, subscriberBufferSize)
}
