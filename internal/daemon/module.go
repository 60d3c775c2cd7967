// Package daemon composes the console daemon out of its parts and owns the
// process lifecycle.
package daemon

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/bus"
	"github.com/zapdesk/console/internal/cache"
	"github.com/zapdesk/console/internal/chat"
	"github.com/zapdesk/console/internal/config"
	"github.com/zapdesk/console/internal/gateway"
	"github.com/zapdesk/console/internal/lock"
	"github.com/zapdesk/console/internal/logging"
	"github.com/zapdesk/console/internal/notify"
	"github.com/zapdesk/console/internal/outbox"
	"github.com/zapdesk/console/internal/platform"
	"github.com/zapdesk/console/internal/session"
	"github.com/zapdesk/console/internal/status"
	intsync "github.com/zapdesk/console/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Listen      string // optional override for the gateway listen address
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCache,
			provideIdentity,
			provideState,
			provideDirectory,
			provideClient,
			provideNotifier,
			provideEngine,
			provideSender,
			provideFeed,
			provideGateway,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.Listen != "" {
		cfg.Gateway.Listen = p.Listen
	}
	logger.Info("config loaded",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("listen", cfg.Gateway.Listen))
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideIdentity(cfg *config.Config, logger *zap.Logger) (*platform.Identity, error) {
	identity, err := platform.ParseToken(cfg.Backend.Token)
	if err != nil {
		return nil, err
	}
	logger.Info("instance identity",
		zap.Int64("user_id", identity.UserID),
		zap.String("instance_id", identity.InstanceID))
	return identity, nil
}

func provideState() *chat.State {
	return chat.NewState()
}

func provideDirectory() *chat.Directory {
	return chat.NewDirectory()
}

func provideClient(cfg *config.Config, logger *zap.Logger) *platform.Client {
	return platform.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, logger)
}

func provideNotifier(cfg *config.Config, b *bus.Bus, dir *chat.Directory, logger *zap.Logger) (*notify.Notifier, error) {
	return notify.New(cfg.Notifications, b, dir, logger)
}

func provideEngine(state *chat.State, b *bus.Bus, client *platform.Client, notifier *notify.Notifier, db *cache.DB, logger *zap.Logger) *intsync.Engine {
	return intsync.New(state, b, client, notifier, db, logger)
}

func provideSender(db *cache.DB, state *chat.State, b *bus.Bus, client *platform.Client, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, state, b, client, 0, logger)
}

func provideFeed(cfg *config.Config, b *bus.Bus, machine *status.Machine, client *platform.Client, engine *intsync.Engine, dir *chat.Directory, db *cache.DB, logger *zap.Logger) *platform.Feed {
	onConnect := func(ctx context.Context) error {
		return bootstrap(ctx, client, engine, dir, db, logger)
	}
	return platform.NewFeed(cfg.Backend.SocketURL, cfg.Backend.Token, b, machine, logger, onConnect)
}

func provideGateway(cfg *config.Config, state *chat.State, machine *status.Machine, client *platform.Client, sender *outbox.Sender, db *cache.DB, b *bus.Bus, identity *platform.Identity, logger *zap.Logger) *gateway.Server {
	return gateway.New(cfg.Gateway, state, machine, client, sender, db, b, identity, logger)
}

// bootstrap runs on every socket (re)connect: it fetches the full REST
// snapshot, replaces the in-memory state with it and refreshes the naming
// directory. Realtime events only start flowing once this succeeds.
func bootstrap(ctx context.Context, client *platform.Client, engine *intsync.Engine, dir *chat.Directory, db *cache.DB, logger *zap.Logger) error {
	chats, msgs, err := client.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := engine.Bootstrap(chats, msgs); err != nil {
		return err
	}
	logger.Info("bootstrap complete",
		zap.Int("chats", len(chats)),
		zap.Int("messages", len(msgs)))

	// Directory refresh is best effort; stale names do not block going live.
	if users, err := client.ListUsers(ctx); err == nil {
		dir.SetUsers(users)
		if err := db.ReplaceUsers(users); err != nil {
			logger.Warn("user directory cache write failed", zap.Error(err))
		}
	} else {
		logger.Warn("user directory refresh failed", zap.Error(err))
	}
	if contacts, err := client.ListContacts(ctx); err == nil {
		dir.SetContacts(contacts)
		if err := db.ReplaceContacts(contacts); err != nil {
			logger.Warn("contact directory cache write failed", zap.Error(err))
		}
	} else {
		logger.Warn("contact directory refresh failed", zap.Error(err))
	}
	return nil
}

// warmStart preloads the in-memory state from the cache so the UI has data
// while the first connect is still in flight. Any failure just means a cold
// start.
func warmStart(state *chat.State, dir *chat.Directory, db *cache.DB, logger *zap.Logger) {
	cached, err := db.ListChats(200, 0)
	if err != nil || len(cached) == 0 {
		return
	}
	var chats []*chat.Chat
	var msgs []*chat.Message
	for _, c := range cached {
		chats = append(chats, &chat.Chat{Key: c.Key, Name: c.Name, Unread: c.Unread})
		history, err := db.ListMessages(c.Key, 0, 200)
		if err != nil {
			continue
		}
		for i := range history {
			msgs = append(msgs, &history[i])
		}
	}
	if err := state.Bootstrap(chats, msgs); err != nil {
		logger.Warn("warm start failed", zap.Error(err))
		return
	}
	if users, err := db.Users(); err == nil {
		dir.SetUsers(users)
	}
	if contacts, err := db.Contacts(); err == nil {
		dir.SetContacts(contacts)
	}
	logger.Info("warm start from cache", zap.Int("chats", len(chats)))
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, feed *platform.Feed, engine *intsync.Engine, sender *outbox.Sender, gw *gateway.Server, state *chat.State, dir *chat.Directory, db *cache.DB, machine *status.Machine, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			warmStart(state, dir, db, logger)

			go func() {
				if err := engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("sync engine stopped", zap.Error(err))
				}
			}()
			go func() {
				if err := sender.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("outbox sender stopped", zap.Error(err))
				}
			}()

			if err := gw.Start(); err != nil {
				return err
			}

			go func() {
				err := feed.Run(runCtx)
				switch {
				case errors.Is(err, context.Canceled):
				case errors.Is(err, platform.ErrUnauthorized):
					logger.Error("instance token rejected, update the config and restart")
				case err != nil:
					logger.Error("realtime feed stopped", zap.Error(err))
					_ = machine.Transition(status.Error)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if err := gw.Stop(ctx); err != nil {
				logger.Warn("gateway shutdown error", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("cache close error", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
