package chat

import "sort"

// Bootstrap loads a REST snapshot into the state, replacing whatever it
// held. Messages are sorted ascending by timestamp once and bucketed per
// conversation; each chat's lastMessage and unread flag are derived from
// its bucket, and the list is ordered by lastMessage timestamp descending
// with message-less chats last.
//
// The result is, by construction, the same state the live handlers produce
// when the same messages are replayed as individual events in timestamp
// order. The rest of the daemon relies on that equivalence when events
// start arriving mid-bootstrap.
func (s *State) Bootstrap(chats []*Chat, msgs []*Message) error {
	sorted := make([]*Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make(map[ConvKey][]*Message)
	s.chats = nil
	s.focus = ConvKey{}
	s.focused = false

	for _, m := range sorted {
		if !m.Conv.Valid() {
			return ErrNoConversation
		}
		if _, err := s.upsertMessage(m); err != nil {
			return err
		}
	}
	for _, c := range chats {
		if !c.Key.Valid() {
			return ErrNoConversation
		}
		bucket := s.messages[c.Key]
		c.LastMessage = latest(bucket)
		c.Unread = anyUnread(bucket)
		s.chats = append(s.chats, c)
	}
	s.resort()
	return nil
}

// Build runs the bootstrap reconciliation on a fresh state.
func Build(chats []*Chat, msgs []*Message) (*State, error) {
	s := NewState()
	if err := s.Bootstrap(chats, msgs); err != nil {
		return nil, err
	}
	return s, nil
}
