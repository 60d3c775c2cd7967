package cache

import (
	"time"

	"github.com/zapdesk/console/internal/chat"
)

// UpsertMessage inserts or updates a message (idempotent on conversation +
// message id). Body, status and edited track the sync state's view; the
// identity columns never change once written.
func (db *DB) UpsertMessage(m *chat.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conv_kind, conv_id, msg_id, sender, body, message_type, status, edited, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conv_kind, conv_id, msg_id) DO UPDATE SET
			body = excluded.body,
			status = excluded.status,
			edited = excluded.edited`,
		m.Conv.Kind, m.Conv.ID, m.ID, m.Sender, m.Body, m.Type, m.Status, m.Edited, m.Timestamp, now)
	return err
}

// ListMessages returns cached messages for one conversation using keyset
// pagination by timestamp, newest first.
func (db *DB) ListMessages(key chat.ConvKey, beforeTs int64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT conv_kind, conv_id, msg_id, sender, body, message_type, status, edited, timestamp
		FROM messages
		WHERE conv_kind = ? AND conv_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, key.Kind, key.ID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.Conv.Kind, &m.Conv.ID, &m.ID, &m.Sender, &m.Body, &m.Type, &m.Status, &m.Edited, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// ChatCount returns the total number of cached chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
