// ABOUTME: SQLite-specific store tests
// ABOUTME: Verifies durability across reopen and selection persistence

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "chat.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.CreateConversation(ctx, &Conversation{ID: "c1", DisplayName: "Durable"}))
	msg, err := s.AppendMessage(ctx, "c1", Draft{Body: "Bonjour"})
	require.NoError(t, err)
	_, err = s.ToggleReaction(ctx, "c1", msg.ID, "🎉", "user-a")
	require.NoError(t, err)
	_, err = s.SelectConversation(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	conv, err := reopened.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Durable", conv.DisplayName)

	msgs, err := reopened.MessagesFor(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bonjour", msgs[0].Body)
	require.Len(t, msgs[0].Reactions, 1)
	assert.Equal(t, "🎉", msgs[0].Reactions[0].Symbol)

	active, err := reopened.ActiveConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c1", active)
}

func TestSQLiteStore_IDSequenceContinuesAfterReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "chat.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	first, err := s.AppendMessage(ctx, "c1", Draft{Body: "un"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	second, err := reopened.AppendMessage(ctx, "c1", Draft{Body: "deux"})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)
}
