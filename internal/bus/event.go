package bus

import "time"

// Event is a domain event published on the bus. Kind is a dot-separated
// name whose leading segment acts as a namespace:
//
//	rt.*       decoded realtime events from the platform socket
//	chat.*     sync-state changes (list updated, chat removed, leave intent)
//	notify.*   user-facing notifications ready for delivery
//	send.*     outbox progress (queued, ack, failed)
//	session.*  connection state changes
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Kinds published across the daemon. Subscribers usually take a whole
// namespace ("chat.") rather than a single kind.
const (
	KindRealtime    = "rt.event"
	KindChatUpdated = "chat.updated"
	KindChatRemoved = "chat.removed"
	KindLeaveIntent = "chat.leave_intent"
	KindNotify      = "notify.message"
	KindSendQueued  = "send.queued"
	KindSendAck     = "send.ack"
	KindSendFailed  = "send.failed"
	KindSession     = "session.status_changed"
)
