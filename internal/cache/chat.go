package cache

import (
	"database/sql"
	"time"

	"github.com/zapdesk/console/internal/chat"
)

// UpsertChat inserts or updates a chat row.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (conv_kind, conv_id, name, unread, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conv_kind, conv_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			unread = excluded.unread,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			updated_at = excluded.updated_at`,
		c.Key.Kind, c.Key.ID, c.Name, c.Unread, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// DeleteChat removes a chat and its cached messages. Used when a chat
// finishes or is transferred away.
func (db *DB) DeleteChat(key chat.ConvKey) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE conv_kind = ? AND conv_id = ?`, key.Kind, key.ID); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM chats WHERE conv_kind = ? AND conv_id = ?`, key.Kind, key.ID)
	return err
}

// ListChats returns cached chats sorted by last message timestamp descending.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT conv_kind, conv_id, name, unread, last_message_at, last_message_preview
		FROM chats
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.Key.Kind, &c.Key.ID, &c.Name, &c.Unread, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single cached chat, or nil when absent.
func (db *DB) GetChat(key chat.ConvKey) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT conv_kind, conv_id, name, unread, last_message_at, last_message_preview
		FROM chats WHERE conv_kind = ? AND conv_id = ?`, key.Kind, key.ID).
		Scan(&c.Key.Kind, &c.Key.ID, &c.Name, &c.Unread, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkChatRead clears the unread flag of a cached chat.
func (db *DB) MarkChatRead(key chat.ConvKey) error {
	_, err := db.Exec(`UPDATE chats SET unread = 0, updated_at = ? WHERE conv_kind = ? AND conv_id = ?`,
		time.Now().UnixMilli(), key.Kind, key.ID)
	return err
}
