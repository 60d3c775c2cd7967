package chat

import (
	"sync"
)

// State is the single owner of the console's in-memory chat data: the
// per-conversation message store, the ordered chat list and the focused
// conversation. Every mutation happens under one mutex, so each handler's
// change is atomic with respect to readers.
//
// State is handed to handlers by reference; there is no package-level
// instance.
type State struct {
	mu       sync.Mutex
	messages map[ConvKey][]*Message
	chats    []*Chat
	focus    ConvKey
	focused  bool
}

// NewState creates an empty sync state.
func NewState() *State {
	return &State{
		messages: make(map[ConvKey][]*Message),
	}
}

// Focus marks the given conversation as the one currently displayed.
func (s *State) Focus(key ConvKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focus = key
	s.focused = true
}

// Blur clears the focused conversation.
func (s *State) Blur() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focus = ConvKey{}
	s.focused = false
}

// Focused returns the currently displayed conversation, if any. Comparison
// with it is always by value, never by identity.
func (s *State) Focused() (ConvKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus, s.focused
}

// ApplyMessage merges an incoming message into the store and, when the
// message is new, updates the chat list (lastMessage, unread flag, order).
// Duplicate deliveries of the same message id merge the status through
// Resolve and leave the list untouched, so re-delivery is a no-op at the
// state level. Returns whether the message was new to the store.
func (s *State) ApplyMessage(msg *Message) (bool, error) {
	if !msg.Conv.Valid() {
		return false, ErrNoConversation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.upsertMessage(msg)
	if err != nil {
		return false, err
	}
	if created {
		s.messageArrived(msg)
	}
	return created, nil
}

// ApplyStatus merges a status update for a single message. Unknown message
// ids are ignored: the message may simply not be loaded. A status change
// never touches the chat-level unread flag; MarkRead is the only path that
// clears it.
func (s *State) ApplyStatus(key ConvKey, messageID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.find(key, messageID)
	if msg == nil {
		return nil
	}
	resolved, err := Resolve(msg.Status, status)
	if err != nil {
		return err
	}
	msg.Status = resolved
	return nil
}

// ApplyEdit replaces the body of an existing message and flags it edited.
// Identity fields (id, conversation, sender, timestamp) are preserved, and
// the list order does not change.
func (s *State) ApplyEdit(key ConvKey, messageID, newText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg := s.find(key, messageID); msg != nil {
		msg.Body = newText
		msg.Edited = true
	}
}

// ResolveSend settles an optimistic outgoing message once the backend
// acknowledges it: the placeholder inserted under the client-generated id
// takes the server-assigned id, and its status merges with SENT through
// the reconciler. Later status events address the message by server id.
// Unknown client ids are a no-op (the message may have been replaced by a
// bootstrap in between).
func (s *State) ResolveSend(key ConvKey, clientID, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.find(key, clientID)
	if msg == nil {
		return nil
	}
	resolved, err := Resolve(msg.Status, StatusSent)
	if err != nil {
		return err
	}
	msg.ID = serverID
	msg.Status = resolved
	return nil
}

// ChatStarted adds a freshly started chat to the front of the list along
// with its fetched message history. If a chat with the same key already
// exists the call is a no-op, making duplicate chat:started deliveries
// harmless.
func (s *State) ChatStarted(c *Chat, history []*Message) error {
	if !c.Key.Valid() {
		return ErrNoConversation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chatAt(c.Key) >= 0 {
		return nil
	}
	for _, m := range history {
		m.Conv = c.Key
		if _, err := s.upsertMessage(m); err != nil {
			return err
		}
	}
	bucket := s.messages[c.Key]
	c.LastMessage = latest(bucket)
	c.Unread = anyUnread(bucket)
	s.chats = append([]*Chat{c}, s.chats...)
	return nil
}

// RemoveChat drops a finished or transferred chat: it leaves the list, its
// message bucket is purged, and the focus is cleared if it pointed at the
// chat. Reports whether the chat was present. Leaving the transport-level
// socket room is the caller's concern; the state only forgets.
func (s *State) RemoveChat(key ConvKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.chatAt(key)
	delete(s.messages, key)
	if s.focused && s.focus == key {
		s.focus = ConvKey{}
		s.focused = false
	}
	if i < 0 {
		return false
	}
	s.chats = append(s.chats[:i], s.chats[i+1:]...)
	return true
}

// MarkRead clears the unread flag of the given conversation. Absent chats
// are a no-op. The key is captured by the caller at call time, so a
// late-resolving mark-as-read can never hit a newly focused chat.
func (s *State) MarkRead(key ConvKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.chatAt(key); i >= 0 {
		s.chats[i].Unread = false
	}
}

// Chats returns a snapshot of the ordered chat list. The returned chats are
// copies; LastMessage values are copied as well so readers never alias
// store-owned messages.
func (s *State) Chats() []Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		cc := *c
		if c.LastMessage != nil {
			lm := *c.LastMessage
			cc.LastMessage = &lm
		}
		out = append(out, cc)
	}
	return out
}

// Messages returns a snapshot of one conversation's messages in store
// (arrival) order. Unknown conversations yield an empty slice.
func (s *State) Messages(key ConvKey) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.messages[key]
	out := make([]Message, 0, len(bucket))
	for _, m := range bucket {
		out = append(out, *m)
	}
	return out
}

// Chat returns a snapshot of a single list entry.
func (s *State) Chat(key ConvKey) (Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.chatAt(key)
	if i < 0 {
		return Chat{}, false
	}
	cc := *s.chats[i]
	if cc.LastMessage != nil {
		lm := *cc.LastMessage
		cc.LastMessage = &lm
	}
	return cc, true
}

func (s *State) chatAt(key ConvKey) int {
	for i, c := range s.chats {
		if c.Key == key {
			return i
		}
	}
	return -1
}

func (s *State) find(key ConvKey, messageID string) *Message {
	for _, m := range s.messages[key] {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}
