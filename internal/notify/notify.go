// Package notify turns inbound messages into user-facing notifications.
// The daemon itself never talks to the OS notification center: it publishes
// notify.* events on the bus and the gateway forwards them to the browser,
// which owns the permission state (already-granted is assumed, there is no
// request flow here).
package notify

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/bus"
	"github.com/zapdesk/console/internal/chat"
	"github.com/zapdesk/console/internal/config"
)

// DefaultSeenCacheSize bounds the duplicate-suppression cache. The old
// console kept an unbounded set of seen message ids for the process
// lifetime; a bounded LRU keeps the same reconnect/replay protection
// without the leak.
const DefaultSeenCacheSize = 4096

// Notification is the payload of notify.message bus events.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound bool   `json:"sound"`
}

// Notifier gates and formats message notifications.
type Notifier struct {
	cfg    config.Notifications
	bus    *bus.Bus
	dir    *chat.Directory
	seen   *lru.Cache[string, struct{}]
	logger *zap.Logger
}

// New creates a notifier. The directory supplies display names for
// notification titles.
func New(cfg config.Notifications, b *bus.Bus, dir *chat.Directory, logger *zap.Logger) (*Notifier, error) {
	size := cfg.SeenCacheSize
	if size <= 0 {
		size = DefaultSeenCacheSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Notifier{cfg: cfg, bus: b, dir: dir, seen: seen, logger: logger}, nil
}

// MessageReceived considers one newly stored message for notification.
// Nothing is emitted when notifications are disabled, the message was
// authored locally, the conversation is currently focused, or the same
// message id was already notified (reconnect replay).
func (n *Notifier) MessageReceived(msg *chat.Message, focused bool) {
	if !n.cfg.Enabled || msg.FromMe() || focused {
		return
	}
	seenKey := msg.Conv.String() + "#" + msg.ID
	if ok, _ := n.seen.ContainsOrAdd(seenKey, struct{}{}); ok {
		return
	}

	title := n.dir.DisplayName(msg.Sender)
	n.bus.Publish(bus.Event{
		Kind: bus.KindNotify,
		Payload: Notification{
			Title: title,
			Body:  preview(msg),
			Sound: n.cfg.Sound,
		},
	})
	if n.logger != nil {
		n.logger.Debug("notification emitted",
			zap.String("conv", msg.Conv.String()),
			zap.String("msg_id", msg.ID))
	}
}

// preview renders the notification body for each message type. Media
// messages use the labels the console UI shows in the chat list.
func preview(msg *chat.Message) string {
	switch msg.Type {
	case chat.TypeImage:
		return "Imagem"
	case chat.TypeVideo:
		return "Vídeo"
	case chat.TypeAudio, chat.TypePTT:
		return "Áudio"
	case chat.TypeDocument, chat.TypeFile:
		return "Documento"
	}
	return msg.Body
}
