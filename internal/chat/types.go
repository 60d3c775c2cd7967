package chat

import "fmt"

// Kind discriminates the two conversation transports the console handles.
type Kind string

const (
	KindWhatsApp Kind = "wpp"
	KindInternal Kind = "internal"
)

// ParseKind validates a conversation kind coming from the wire or a URL.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindWhatsApp, KindInternal:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown conversation kind %q", s)
}

// ConvKey uniquely identifies a conversation: a WhatsApp contact thread or
// an internal chat thread. The zero value is not a valid key; callers that
// may lack a conversation reference carry an explicit ok flag instead of a
// sentinel id.
type ConvKey struct {
	Kind Kind
	ID   int64
}

// Valid reports whether the key identifies a real conversation.
func (k ConvKey) Valid() bool {
	return k.ID != 0 && (k.Kind == KindWhatsApp || k.Kind == KindInternal)
}

func (k ConvKey) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.ID)
}

// Status is a message delivery status. Values form the ordered set
// PENDING < SENT < RECEIVED < READ used by Resolve.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusReceived Status = "RECEIVED"
	StatusRead     Status = "READ"
)

// ParseStatus validates a wire status value. Unknown values are rejected,
// never defaulted.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusSent, StatusReceived, StatusRead:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown message status %q", s)
}

// MessageType tags the content of a message.
type MessageType string

const (
	TypeChat     MessageType = "chat"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypePTT      MessageType = "ptt"
	TypeDocument MessageType = "document"
	TypeFile     MessageType = "file"
)

// Message is a single chat message as stored by the sync state. Identity
// fields (ID, Conv, Sender, Timestamp) never change after insertion; Body,
// Status and Edited are the mutable fields merged by later events.
type Message struct {
	ID        string
	Conv      ConvKey
	Sender    string // raw sender tag: "me", "system", "user:<id>", "external:<phone>[:<name>]"
	Body      string
	Type      MessageType
	Status    Status
	Timestamp int64 // unix milliseconds, assigned sender-side
	Edited    bool
}

// FromMe reports whether the message was authored by the local user.
func (m *Message) FromMe() bool {
	return m.Sender == senderMe
}

// Chat is one entry of the ordered conversation list.
type Chat struct {
	Key         ConvKey
	Name        string
	Unread      bool
	LastMessage *Message
}
