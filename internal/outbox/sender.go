// Package outbox implements store-and-forward for outgoing messages. A send
// is durable the moment it is queued: the message lands in the cache's
// outbox table and shows up in the chat state as PENDING immediately, and a
// background loop delivers it to the backend whenever it is reachable.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/bus"
	"github.com/zapdesk/console/internal/cache"
	"github.com/zapdesk/console/internal/chat"
)

// Submitter delivers one message to the backend and returns the
// server-assigned message id.
type Submitter interface {
	SendMessage(ctx context.Context, key chat.ConvKey, clientMsgID, body string) (string, error)
}

// Queued is the payload of send.queued events.
type Queued struct {
	Key         chat.ConvKey
	ClientMsgID string
}

// Ack is the payload of send.ack events.
type Ack struct {
	Key         chat.ConvKey
	ClientMsgID string
	ServerMsgID string
}

// Failure is the payload of send.failed events.
type Failure struct {
	Key         chat.ConvKey
	ClientMsgID string
	Reason      string
}

// Sender drains the outbox.
type Sender struct {
	db       *cache.DB
	state    *chat.State
	bus      *bus.Bus
	submit   Submitter
	logger   *zap.Logger
	interval time.Duration
	wake     chan struct{}
}

// NewSender creates a sender draining every interval; zero means a 2s
// default. Queue wakes the loop immediately, the ticker only covers sends
// queued while the backend was down.
func NewSender(db *cache.DB, state *chat.State, b *bus.Bus, submit Submitter, interval time.Duration, logger *zap.Logger) *Sender {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Sender{
		db:       db,
		state:    state,
		bus:      b,
		submit:   submit,
		logger:   logger,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// Queue accepts a message for sending and returns the client-generated id
// the UI can track it by. The optimistic PENDING message is visible in the
// chat state before this returns.
func (s *Sender) Queue(key chat.ConvKey, body string) (string, error) {
	if !key.Valid() {
		return "", chat.ErrNoConversation
	}
	clientID := uuid.NewString()
	if err := s.db.QueueOutbox(clientID, key, body); err != nil {
		return "", err
	}
	if _, err := s.state.ApplyMessage(&chat.Message{
		ID:        clientID,
		Conv:      key,
		Sender:    "me",
		Body:      body,
		Type:      chat.TypeChat,
		Status:    chat.StatusPending,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return "", err
	}
	s.bus.Publish(bus.Event{Kind: bus.KindSendQueued, Payload: Queued{Key: key, ClientMsgID: clientID}})

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return clientID, nil
}

// Run drains the outbox until ctx is canceled.
func (s *Sender) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.wake:
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.drain(ctx)
	}
}

func (s *Sender) drain(ctx context.Context) {
	entries, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("outbox read failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		s.send(ctx, entry)
	}
}

func (s *Sender) send(ctx context.Context, entry cache.OutboxEntry) {
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logger.Error("outbox update failed", zap.Error(err))
		return
	}

	serverID, err := s.submit.SendMessage(ctx, entry.Key, entry.ClientMsgID, entry.Body)
	if err != nil {
		s.logger.Warn("send failed",
			zap.String("conv", entry.Key.String()),
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.Error(err))
		if dbErr := s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error()); dbErr != nil {
			s.logger.Error("outbox update failed", zap.Error(dbErr))
		}
		s.bus.Publish(bus.Event{Kind: bus.KindSendFailed, Payload: Failure{
			Key:         entry.Key,
			ClientMsgID: entry.ClientMsgID,
			Reason:      err.Error(),
		}})
		return
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverID); err != nil {
		s.logger.Error("outbox update failed", zap.Error(err))
	}

	// The cached copy keeps the queue-time timestamp of the optimistic
	// placeholder so a warm start orders the list the same way the live
	// state did. Fall back to the outbox row when a bootstrap replaced the
	// state in between.
	ts := entry.CreatedAt
	for _, m := range s.state.Messages(entry.Key) {
		if m.ID == entry.ClientMsgID {
			ts = m.Timestamp
			break
		}
	}
	if err := s.state.ResolveSend(entry.Key, entry.ClientMsgID, serverID); err != nil {
		s.logger.Warn("send ack not applied", zap.Error(err))
	}
	if err := s.db.UpsertMessage(&chat.Message{
		ID:        serverID,
		Conv:      entry.Key,
		Sender:    "me",
		Body:      entry.Body,
		Type:      chat.TypeChat,
		Status:    chat.StatusSent,
		Timestamp: ts,
	}); err != nil {
		s.logger.Warn("cache message write failed", zap.Error(err))
	}
	s.bus.Publish(bus.Event{Kind: bus.KindSendAck, Payload: Ack{
		Key:         entry.Key,
		ClientMsgID: entry.ClientMsgID,
		ServerMsgID: serverID,
	}})
}
