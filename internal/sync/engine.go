// Package sync applies realtime events to the in-memory chat state. The
// engine is the only writer of chat.State during normal operation; it reads
// decoded events off the bus, mutates the state, mirrors the result into
// the on-disk cache and tells the rest of the daemon what changed.
package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/bus"
	"github.com/zapdesk/console/internal/cache"
	"github.com/zapdesk/console/internal/chat"
	"github.com/zapdesk/console/internal/notify"
	"github.com/zapdesk/console/internal/wire"
)

// Fetcher loads chat detail over REST when a chat:started event arrives
// carrying only the conversation id.
type Fetcher interface {
	GetChat(ctx context.Context, key chat.ConvKey) (*chat.Chat, error)
	ListMessages(ctx context.Context, key chat.ConvKey, limit int) ([]*chat.Message, error)
}

// Removed is the payload of chat.removed and chat.leave_intent events.
type Removed struct {
	Key chat.ConvKey
}

// Updated is the payload of chat.updated events.
type Updated struct {
	Key chat.ConvKey
}

// Engine dispatches realtime events to the chat state.
type Engine struct {
	state    *chat.State
	bus      *bus.Bus
	fetcher  Fetcher
	notifier *notify.Notifier
	cache    *cache.DB
	logger   *zap.Logger

	events <-chan bus.Event
	unsub  func()
}

// New creates an engine and subscribes it to the realtime feed. Events
// published from this point on are buffered until Run drains them.
// notifier and db may be nil; the corresponding side effects are skipped.
func New(state *chat.State, b *bus.Bus, fetcher Fetcher, notifier *notify.Notifier, db *cache.DB, logger *zap.Logger) *Engine {
	events, unsub := b.Subscribe("rt.", 256)
	return &Engine{
		state:    state,
		bus:      b,
		fetcher:  fetcher,
		notifier: notifier,
		cache:    db,
		logger:   logger,
		events:   events,
		unsub:    unsub,
	}
}

// Bootstrap replaces the in-memory state with a REST snapshot and mirrors
// it into the cache. Called on every (re)connect before the feed goes live,
// so realtime events always land on a reconciled baseline.
func (e *Engine) Bootstrap(chats []*chat.Chat, msgs []*chat.Message) error {
	if err := e.state.Bootstrap(chats, msgs); err != nil {
		return err
	}
	if e.cache != nil {
		for _, m := range msgs {
			if err := e.cache.UpsertMessage(m); err != nil {
				e.logger.Warn("cache message write failed", zap.Error(err))
			}
		}
		for _, c := range chats {
			e.mirrorChat(c.Key)
		}
	}
	e.bus.Publish(bus.Event{Kind: bus.KindChatUpdated, Payload: Updated{}})
	return nil
}

// Run consumes rt.* events until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	defer e.unsub()

	for {
		select {
		case evt := <-e.events:
			decoded, ok := evt.Payload.(wire.Event)
			if !ok {
				e.logger.Warn("rt event with unexpected payload", zap.String("kind", evt.Kind))
				continue
			}
			e.handle(ctx, decoded)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handle applies one decoded event. Errors are logged and the loop keeps
// going; one bad event must not stall the feed.
func (e *Engine) handle(ctx context.Context, evt wire.Event) {
	switch evt := evt.(type) {
	case wire.MessageEvent:
		e.handleMessage(evt.Msg)
	case wire.StatusEvent:
		if err := e.state.ApplyStatus(evt.Conv, evt.MessageID, evt.Status); err != nil {
			e.logger.Warn("status update rejected",
				zap.String("conv", evt.Conv.String()),
				zap.String("msg_id", evt.MessageID),
				zap.Error(err))
			return
		}
		e.mirrorMessage(evt.Conv, evt.MessageID)
		e.publishUpdated(evt.Conv)
	case wire.EditEvent:
		e.state.ApplyEdit(evt.Conv, evt.MessageID, evt.NewText)
		e.mirrorMessage(evt.Conv, evt.MessageID)
		e.publishUpdated(evt.Conv)
	case wire.ChatStartedEvent:
		e.handleChatStarted(ctx, evt.Conv)
	case wire.ChatFinishedEvent:
		e.handleChatGone(evt.Conv)
	case wire.ChatTransferredEvent:
		// Transferred to another group reads the same as finished here: the
		// chat leaves this console's inbox.
		e.handleChatGone(evt.Conv)
	default:
		e.logger.Warn("unhandled realtime event", zap.String("event", evt.Name()))
	}
}

func (e *Engine) handleMessage(msg *chat.Message) {
	focusKey, ok := e.state.Focused()
	focused := ok && focusKey == msg.Conv

	created, err := e.state.ApplyMessage(msg)
	if err != nil {
		e.logger.Warn("message rejected",
			zap.String("conv", msg.Conv.String()),
			zap.String("msg_id", msg.ID),
			zap.Error(err))
		return
	}
	if !created {
		// Redelivery. The status merge already happened inside ApplyMessage;
		// no notification, no list event.
		e.mirrorMessage(msg.Conv, msg.ID)
		return
	}

	if e.notifier != nil {
		e.notifier.MessageReceived(msg, focused)
	}
	if e.cache != nil {
		if err := e.cache.UpsertMessage(msg); err != nil {
			e.logger.Warn("cache message write failed", zap.Error(err))
		}
		e.mirrorChat(msg.Conv)
	}
	e.publishUpdated(msg.Conv)
}

func (e *Engine) handleChatStarted(ctx context.Context, key chat.ConvKey) {
	detail, err := e.fetcher.GetChat(ctx, key)
	if err != nil {
		e.logger.Error("chat detail fetch failed", zap.String("conv", key.String()), zap.Error(err))
		return
	}
	history, err := e.fetcher.ListMessages(ctx, key, 0)
	if err != nil {
		e.logger.Error("chat history fetch failed", zap.String("conv", key.String()), zap.Error(err))
		return
	}
	if err := e.state.ChatStarted(detail, history); err != nil {
		e.logger.Warn("chat start rejected", zap.String("conv", key.String()), zap.Error(err))
		return
	}
	if e.cache != nil {
		for _, m := range history {
			if err := e.cache.UpsertMessage(m); err != nil {
				e.logger.Warn("cache message write failed", zap.Error(err))
			}
		}
		e.mirrorChat(key)
	}
	e.publishUpdated(key)
}

func (e *Engine) handleChatGone(key chat.ConvKey) {
	present := e.state.RemoveChat(key)
	if e.cache != nil {
		if err := e.cache.DeleteChat(key); err != nil {
			e.logger.Warn("cache chat delete failed", zap.Error(err))
		}
	}
	if !present {
		return
	}
	e.bus.Publish(bus.Event{Kind: bus.KindChatRemoved, Payload: Removed{Key: key}})
	// The gateway forwards this to the UI so the browser leaves the socket
	// room for the conversation.
	e.bus.Publish(bus.Event{Kind: bus.KindLeaveIntent, Payload: Removed{Key: key}})
}

func (e *Engine) publishUpdated(key chat.ConvKey) {
	e.bus.Publish(bus.Event{Kind: bus.KindChatUpdated, Payload: Updated{Key: key}})
}

// mirrorMessage copies the current state of one message into the cache.
func (e *Engine) mirrorMessage(key chat.ConvKey, messageID string) {
	if e.cache == nil {
		return
	}
	for _, m := range e.state.Messages(key) {
		if m.ID == messageID {
			if err := e.cache.UpsertMessage(&m); err != nil {
				e.logger.Warn("cache message write failed", zap.Error(err))
			}
			return
		}
	}
}

// mirrorChat copies one list entry into the cache.
func (e *Engine) mirrorChat(key chat.ConvKey) {
	c, ok := e.state.Chat(key)
	if !ok {
		return
	}
	entry := &cache.Chat{Key: c.Key, Name: c.Name, Unread: c.Unread}
	if c.LastMessage != nil {
		entry.LastMessageAt = c.LastMessage.Timestamp
		entry.LastMessagePreview = c.LastMessage.Body
	}
	if err := e.cache.UpsertChat(entry); err != nil {
		e.logger.Warn("cache chat write failed", zap.Error(err))
	}
}
