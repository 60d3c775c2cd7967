package platform

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/bus"
	"github.com/zapdesk/console/internal/status"
	"github.com/zapdesk/console/internal/wire"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second

	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// Feed maintains the realtime websocket to the backend's socket service.
// Decoded events are published on the bus under rt.*; the sync engine picks
// them up from there. The feed also drives the session state machine
// through the connect/bootstrap/live/reconnect cycle.
type Feed struct {
	url     string
	token   string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	dialer  *websocket.Dialer

	// onConnect runs after each successful dial, before the feed goes LIVE.
	// The daemon hooks the bootstrap snapshot here; an error forces a
	// reconnect so realtime events are never applied on a stale state.
	onConnect func(ctx context.Context) error
}

// NewFeed creates a feed. onConnect may be nil.
func NewFeed(url, token string, b *bus.Bus, m *status.Machine, logger *zap.Logger, onConnect func(ctx context.Context) error) *Feed {
	return &Feed{
		url:       url,
		token:     token,
		bus:       b,
		machine:   m,
		logger:    logger,
		dialer:    websocket.DefaultDialer,
		onConnect: onConnect,
	}
}

// Run connects and keeps reconnecting until ctx is canceled. It returns
// ErrUnauthorized when the backend rejects the token; that is the only
// error it gives up on.
func (f *Feed) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		if err := f.machine.Transition(status.Connecting); err != nil {
			f.logger.Warn("connect transition refused", zap.Error(err))
		}

		conn, err := f.dial(ctx)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				_ = f.machine.Transition(status.AuthRequired)
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("socket dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			_ = f.machine.Transition(status.Reconnecting)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, reconnectMax)
			continue
		}
		backoff = reconnectMin

		err = f.serve(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("socket connection lost", zap.Error(err))
		_ = f.machine.Transition(status.Reconnecting)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
	}
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{"Authorization": {"Bearer " + f.token}}
	conn, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return conn, nil
}

// serve runs one connection: bootstrap, then the read pump until the
// connection drops or ctx is canceled.
func (f *Feed) serve(ctx context.Context, conn *websocket.Conn) error {
	if err := f.machine.Transition(status.Bootstrapping); err != nil {
		f.logger.Warn("bootstrap transition refused", zap.Error(err))
	}
	if f.onConnect != nil {
		if err := f.onConnect(ctx); err != nil {
			return err
		}
	}
	if err := f.machine.Transition(status.Live); err != nil {
		f.logger.Warn("live transition refused", zap.Error(err))
	}
	f.logger.Info("realtime feed live")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(ctx, conn, done)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		evt, err := wire.Decode(frame)
		if err != nil {
			// A bad frame is the backend's problem, not a reason to drop
			// the connection.
			f.logger.Warn("dropping frame", zap.Error(err))
			continue
		}
		f.bus.Publish(bus.Event{Kind: bus.KindRealtime, Payload: evt})
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
