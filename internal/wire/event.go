// Package wire decodes the realtime frames the platform's socket service
// pushes to console clients. Every frame is an envelope with an event name
// and a JSON payload; each name maps to exactly one typed event. Unknown
// names are rejected explicitly so a new backend event can never fall
// through half-handled.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/zapdesk/console/internal/chat"
)

// Event is one decoded realtime event. The concrete types below form a
// closed set; dispatchers switch exhaustively over them.
type Event interface {
	// Name returns the wire event name the payload arrived under.
	Name() string
}

// MessageEvent carries a full new (or re-delivered) message.
type MessageEvent struct {
	name string
	Msg  *chat.Message
}

func (e MessageEvent) Name() string { return e.name }

// StatusEvent carries a delivery-status change for one message.
type StatusEvent struct {
	name      string
	Conv      chat.ConvKey
	MessageID string
	Status    chat.Status
}

func (e StatusEvent) Name() string { return e.name }

// EditEvent carries a body replacement for one message.
type EditEvent struct {
	name      string
	Conv      chat.ConvKey
	MessageID string
	NewText   string
}

func (e EditEvent) Name() string { return e.name }

// ChatStartedEvent announces a conversation entering the inbox. The payload
// carries only the id; the handler fetches the chat detail over REST.
type ChatStartedEvent struct {
	name string
	Conv chat.ConvKey
}

func (e ChatStartedEvent) Name() string { return e.name }

// ChatFinishedEvent announces a conversation leaving the inbox.
type ChatFinishedEvent struct {
	name string
	Conv chat.ConvKey
}

func (e ChatFinishedEvent) Name() string { return e.name }

// ChatTransferredEvent announces a conversation handed to another group;
// for this client it leaves the inbox just like a finished chat.
type ChatTransferredEvent struct {
	name string
	Conv chat.ConvKey
}

func (e ChatTransferredEvent) Name() string { return e.name }

// ErrUnknownEvent is wrapped into errors for unrecognized event names.
var ErrUnknownEvent = fmt.Errorf("unknown wire event")

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type messagePayload struct {
	ID             json.Number `json:"id"`
	ContactID      int64       `json:"contactId"`
	InternalChatID int64       `json:"internalChatId"`
	Sender         string      `json:"sender"`
	Body           string      `json:"body"`
	Type           string      `json:"type"`
	Status         string      `json:"status"`
	Timestamp      int64       `json:"timestamp"`
	Edited         bool        `json:"edited"`
}

type statusPayload struct {
	MessageID         json.Number `json:"messageId"`
	InternalMessageID json.Number `json:"internalMessageId"`
	ContactID         int64       `json:"contactId"`
	InternalChatID    int64       `json:"internalChatId"`
	Status            string      `json:"status"`
}

type editPayload struct {
	MessageID         json.Number `json:"messageId"`
	InternalMessageID json.Number `json:"internalMessageId"`
	ContactID         int64       `json:"contactId"`
	InternalChatID    int64       `json:"internalChatId"`
	NewText           string      `json:"newText"`
}

type chatPayload struct {
	ChatID         int64 `json:"chatId"`
	InternalChatID int64 `json:"internalChatId"`
}

// Decode parses one socket frame into a typed event. Malformed payloads and
// unknown event names return an error; callers drop the frame and keep the
// loop alive.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case "message":
		return decodeMessage(env, chat.KindWhatsApp)
	case "internal-message":
		return decodeMessage(env, chat.KindInternal)
	case "message:status":
		return decodeStatus(env, chat.KindWhatsApp)
	case "internal-message:status":
		return decodeStatus(env, chat.KindInternal)
	case "message:edit":
		return decodeEdit(env, chat.KindWhatsApp)
	case "internal-message:edit":
		return decodeEdit(env, chat.KindInternal)
	case "chat:started":
		return decodeChat(env, chat.KindWhatsApp, func(k chat.ConvKey) Event { return ChatStartedEvent{name: env.Event, Conv: k} })
	case "internal-chat:started":
		return decodeChat(env, chat.KindInternal, func(k chat.ConvKey) Event { return ChatStartedEvent{name: env.Event, Conv: k} })
	case "chat:finished":
		return decodeChat(env, chat.KindWhatsApp, func(k chat.ConvKey) Event { return ChatFinishedEvent{name: env.Event, Conv: k} })
	case "internal-chat:finished":
		return decodeChat(env, chat.KindInternal, func(k chat.ConvKey) Event { return ChatFinishedEvent{name: env.Event, Conv: k} })
	case "chat:transferred":
		return decodeChat(env, chat.KindWhatsApp, func(k chat.ConvKey) Event { return ChatTransferredEvent{name: env.Event, Conv: k} })
	case "internal-chat:transferred":
		return decodeChat(env, chat.KindInternal, func(k chat.ConvKey) Event { return ChatTransferredEvent{name: env.Event, Conv: k} })
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
}

func decodeMessage(env envelope, kind chat.Kind) (Event, error) {
	var p messagePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	key, err := convKey(kind, p.ContactID, p.InternalChatID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", env.Event, err)
	}
	status, err := chat.ParseStatus(p.Status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", env.Event, err)
	}
	if p.ID.String() == "" {
		return nil, fmt.Errorf("%s: missing message id", env.Event)
	}
	return MessageEvent{
		name: env.Event,
		Msg: &chat.Message{
			ID:        p.ID.String(),
			Conv:      key,
			Sender:    p.Sender,
			Body:      p.Body,
			Type:      chat.MessageType(p.Type),
			Status:    status,
			Timestamp: p.Timestamp,
			Edited:    p.Edited,
		},
	}, nil
}

func decodeStatus(env envelope, kind chat.Kind) (Event, error) {
	var p statusPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	key, err := convKey(kind, p.ContactID, p.InternalChatID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", env.Event, err)
	}
	status, err := chat.ParseStatus(p.Status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", env.Event, err)
	}
	id := p.MessageID.String()
	if kind == chat.KindInternal {
		id = p.InternalMessageID.String()
	}
	if id == "" {
		return nil, fmt.Errorf("%s: missing message id", env.Event)
	}
	return StatusEvent{name: env.Event, Conv: key, MessageID: id, Status: status}, nil
}

func decodeEdit(env envelope, kind chat.Kind) (Event, error) {
	var p editPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	key, err := convKey(kind, p.ContactID, p.InternalChatID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", env.Event, err)
	}
	id := p.MessageID.String()
	if kind == chat.KindInternal {
		id = p.InternalMessageID.String()
	}
	if id == "" {
		return nil, fmt.Errorf("%s: missing message id", env.Event)
	}
	return EditEvent{name: env.Event, Conv: key, MessageID: id, NewText: p.NewText}, nil
}

func decodeChat(env envelope, kind chat.Kind, mk func(chat.ConvKey) Event) (Event, error) {
	var p chatPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	key, err := convKey(kind, p.ChatID, p.InternalChatID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", env.Event, err)
	}
	return mk(key), nil
}

func convKey(kind chat.Kind, contactID, internalChatID int64) (chat.ConvKey, error) {
	id := contactID
	if kind == chat.KindInternal {
		id = internalChatID
	}
	key := chat.ConvKey{Kind: kind, ID: id}
	if !key.Valid() {
		return chat.ConvKey{}, chat.ErrNoConversation
	}
	return key, nil
}
