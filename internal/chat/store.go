package chat

import "errors"

// ErrNoConversation rejects messages and chats that carry no conversation
// reference. The old console bucketed those under id 0, which collides
// genuinely different unassigned messages; here they are dropped before
// they reach the store.
var ErrNoConversation = errors.New("no conversation reference")

// upsertMessage merges a message into its conversation bucket. The bucket
// is created on first access, so events racing the bootstrap fetch land
// safely. New messages are appended in arrival order, not kept time-sorted;
// ordering for display is the chat list's concern. A message
// whose id is already present only has its status merged through Resolve;
// identity fields and body are untouched (body changes only via edits).
//
// Callers hold s.mu.
func (s *State) upsertMessage(msg *Message) (created bool, err error) {
	bucket := s.messages[msg.Conv]
	for _, existing := range bucket {
		if existing.ID == msg.ID {
			resolved, err := Resolve(existing.Status, msg.Status)
			if err != nil {
				return false, err
			}
			existing.Status = resolved
			return false, nil
		}
	}
	if err := checkStatus(msg.Status); err != nil {
		return false, err
	}
	s.messages[msg.Conv] = append(bucket, msg)
	return true, nil
}

// latest returns the max-timestamp message of a bucket, or nil.
func latest(bucket []*Message) *Message {
	var best *Message
	for _, m := range bucket {
		if best == nil || m.Timestamp > best.Timestamp {
			best = m
		}
	}
	return best
}

// anyUnread reports whether any message addressed to the local user is not
// yet read.
func anyUnread(bucket []*Message) bool {
	for _, m := range bucket {
		if !m.FromMe() && m.Status != StatusRead {
			return true
		}
	}
	return false
}
