// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Durable conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		now:    time.Now,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			avatar_ref TEXT NOT NULL DEFAULT '',
			last_message_preview TEXT NOT NULL DEFAULT '',
			last_activity_label TEXT NOT NULL DEFAULT '',
			unread_count INTEGER NOT NULL DEFAULT 0,
			is_online INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT NOT NULL,
			id INTEGER NOT NULL,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			created_at_label TEXT NOT NULL,
			direction TEXT NOT NULL,
			delivery_state TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'text',
			attachment_ref TEXT NOT NULL DEFAULT '',
			attachment_name TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (conversation_id, id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, id);

		CREATE TABLE IF NOT EXISTS reactions (
			conversation_id TEXT NOT NULL,
			message_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			reactor_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (conversation_id, message_id, symbol, reactor_id),
			FOREIGN KEY (conversation_id, message_id) REFERENCES messages(conversation_id, id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ListConversations returns conversations in insertion order
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, avatar_ref, last_message_preview, last_activity_label, unread_count, is_online
		FROM conversations ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.AvatarRef, &c.LastMessagePreview, &c.LastActivityLabel, &c.UnreadCount, &c.IsOnline); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation returns a single conversation or ErrNotFound
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	c := &Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, avatar_ref, last_message_preview, last_activity_label, unread_count, is_online
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.DisplayName, &c.AvatarRef, &c.LastMessagePreview, &c.LastActivityLabel, &c.UnreadCount, &c.IsOnline)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return c, nil
}

// CreateConversation registers a new conversation at the end of the list
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if _, err := s.GetConversation(ctx, conv.ID); err == nil {
		return ErrDuplicateConversation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, display_name, avatar_ref, last_message_preview, last_activity_label, unread_count, is_online, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT MAX(position) FROM conversations), 0) + 1)`,
		conv.ID, conv.DisplayName, conv.AvatarRef, conv.LastMessagePreview, conv.LastActivityLabel, conv.UnreadCount, conv.IsOnline)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and cascades to its messages
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if active, _ := s.ActiveConversation(ctx); active == id {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = 'active_conversation'`)
	}
	return nil
}

// SelectConversation sets the active conversation and clears its unread
// count. Unknown IDs are a silent no-op.
func (s *SQLiteStore) SelectConversation(ctx context.Context, id string) (Selection, error) {
	previous, err := s.ActiveConversation(ctx)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{Previous: previous, Current: previous}

	if _, err := s.GetConversation(ctx, id); err != nil {
		if err == ErrNotFound {
			return sel, nil
		}
		return sel, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_state (key, value) VALUES ('active_conversation', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, id)
	if err != nil {
		return sel, fmt.Errorf("saving selection: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET unread_count = 0 WHERE id = ?`, id); err != nil {
		return sel, fmt.Errorf("clearing unread count: %w", err)
	}
	sel.Current = id
	return sel, nil
}

// ActiveConversation returns the selected conversation ID, or empty
func (s *SQLiteStore) ActiveConversation(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = 'active_conversation'`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading selection: %w", err)
	}
	return id, nil
}

// AppendMessage stores a new message with the next per-conversation ID.
// The conversation row is created if absent. Blank bodies are rejected
// with ErrEmptyBody.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, draft Draft) (*Message, error) {
	draft, err := normalizeDraft(draft)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking conversation: %w", err)
	}
	if exists == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversations (id, display_name, position)
			VALUES (?, ?, COALESCE((SELECT MAX(position) FROM conversations), 0) + 1)`,
			conversationID, conversationID)
		if err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
	}

	var nextID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(id), 0) + 1 FROM messages WHERE conversation_id = ?`, conversationID).Scan(&nextID); err != nil {
		return nil, fmt.Errorf("allocating message id: %w", err)
	}

	now := s.now()
	msg := &Message{
		ID:             nextID,
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, id, body, created_at, created_at_label, direction, delivery_state, kind, attachment_ref, attachment_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.ID, msg.Body, msg.CreatedAt, msg.CreatedAtLabel, msg.Direction, msg.DeliveryState, msg.Kind, msg.AttachmentRef, msg.AttachmentName)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	unreadBump := 0
	if draft.Direction == DirectionIncoming {
		active, err := s.ActiveConversation(ctx)
		if err == nil && active != conversationID {
			unreadBump = 1
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_preview = ?, last_activity_label = ?, unread_count = unread_count + ?
		WHERE id = ?`,
		preview(msg.Body), msg.CreatedAtLabel, unreadBump, conversationID)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"direction", msg.Direction)
	return msg, nil
}

// MessagesFor returns the conversation's messages in creation order
func (s *SQLiteStore) MessagesFor(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, id, body, created_at, created_at_label, direction, delivery_state, kind, attachment_ref, attachment_name
		FROM messages WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	out := []*Message{}
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ConversationID, &m.ID, &m.Body, &m.CreatedAt, &m.CreatedAtLabel, &m.Direction, &m.DeliveryState, &m.Kind, &m.AttachmentRef, &m.AttachmentName); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range out {
		reactions, err := s.reactionsFor(ctx, conversationID, m.ID)
		if err != nil {
			return nil, err
		}
		m.Reactions = reactions
	}
	return out, nil
}

// reactionsFor loads aggregated reactions for one message
func (s *SQLiteStore) reactionsFor(ctx context.Context, conversationID string, messageID int64) ([]Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, reactor_id FROM reactions
		WHERE conversation_id = ? AND message_id = ?
		ORDER BY created_at ASC, reactor_id ASC`, conversationID, messageID)
	if err != nil {
		return nil, fmt.Errorf("listing reactions: %w", err)
	}
	defer rows.Close()

	var reactions []Reaction
	index := map[string]int{}
	for rows.Next() {
		var symbol, reactor string
		if err := rows.Scan(&symbol, &reactor); err != nil {
			return nil, fmt.Errorf("scanning reaction: %w", err)
		}
		i, ok := index[symbol]
		if !ok {
			reactions = append(reactions, Reaction{Symbol: symbol})
			i = len(reactions) - 1
			index[symbol] = i
		}
		reactions[i].ReactorIDs = append(reactions[i].ReactorIDs, reactor)
		reactions[i].Count++
	}
	return reactions, rows.Err()
}

// ToggleReaction adds the reactor's emoji if absent, removes it if present
func (s *SQLiteStore) ToggleReaction(ctx context.Context, conversationID string, messageID int64, symbol, reactorID string) (*Message, error) {
	var msgExists int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID).Scan(&msgExists)
	if err != nil {
		return nil, fmt.Errorf("checking message: %w", err)
	}
	if msgExists == 0 {
		if _, err := s.GetConversation(ctx, conversationID); err != nil {
			return nil, err
		}
		return nil, ErrMessageNotFound
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM reactions WHERE conversation_id = ? AND message_id = ? AND symbol = ? AND reactor_id = ?`,
		conversationID, messageID, symbol, reactorID)
	if err != nil {
		return nil, fmt.Errorf("removing reaction: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO reactions (conversation_id, message_id, symbol, reactor_id, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			conversationID, messageID, symbol, reactorID, s.now())
		if err != nil {
			return nil, fmt.Errorf("adding reaction: %w", err)
		}
	}

	return s.getMessage(ctx, conversationID, messageID)
}

// getMessage loads a single message with its reactions
func (s *SQLiteStore) getMessage(ctx context.Context, conversationID string, messageID int64) (*Message, error) {
	m := &Message{}
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, id, body, created_at, created_at_label, direction, delivery_state, kind, attachment_ref, attachment_name
		FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID).
		Scan(&m.ConversationID, &m.ID, &m.Body, &m.CreatedAt, &m.CreatedAtLabel, &m.Direction, &m.DeliveryState, &m.Kind, &m.AttachmentRef, &m.AttachmentName)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	reactions, err := s.reactionsFor(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	m.Reactions = reactions
	return m, nil
}

// updateConversationMeta overwrites the list-display fields of a conversation
func (s *SQLiteStore) updateConversationMeta(ctx context.Context, id, preview, activity string, unread int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET last_message_preview = ?, last_activity_label = ?, unread_count = ? WHERE id = ?`,
		preview, activity, unread, id)
	return err
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
