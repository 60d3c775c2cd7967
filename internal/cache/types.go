package cache

import "github.com/zapdesk/console/internal/chat"

// Chat is a cached chat-list row.
type Chat struct {
	Key                chat.ConvKey
	Name               string
	Unread             bool
	LastMessageAt      int64
	LastMessagePreview string
}

// OutboxEntry is a pending or settled outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	Key          chat.ConvKey
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
	CreatedAt    int64
}
