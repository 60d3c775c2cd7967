package chat

import (
	"math"
	"sort"
)

// messageArrived updates the chat list for a newly stored message: the
// matching chat's lastMessage moves to the new message, the chat is flagged
// unread unless it is the focused one (or the message needs no attention),
// and the whole list is re-sorted by lastMessage timestamp descending.
// Messages for conversations not present in the list only live in the
// store; the list membership changes through chatStarted/removeChat alone.
//
// Callers hold s.mu.
func (s *State) messageArrived(msg *Message) {
	i := s.chatAt(msg.Conv)
	if i < 0 {
		return
	}
	c := s.chats[i]
	c.LastMessage = msg
	focused := s.focused && s.focus == msg.Conv
	if !focused && !msg.FromMe() && msg.Status != StatusRead {
		c.Unread = true
	}
	s.resort()
}

// resort orders chats by lastMessage timestamp descending. Chats without a
// last message sink to the end. The sort is stable; equal timestamps keep
// their relative order and no further tie-break is imposed.
func (s *State) resort() {
	sort.SliceStable(s.chats, func(i, j int) bool {
		return lastTS(s.chats[i]) > lastTS(s.chats[j])
	})
}

func lastTS(c *Chat) int64 {
	if c.LastMessage == nil {
		return math.MinInt64
	}
	return c.LastMessage.Timestamp
}
