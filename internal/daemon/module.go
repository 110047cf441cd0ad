package daemon

import (
	"context"
	"net/http"

	"github.com/matheus3301/simchat/internal/api"
	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/clock"
	"github.com/matheus3301/simchat/internal/config"
	"github.com/matheus3301/simchat/internal/connection"
	"github.com/matheus3301/simchat/internal/directory"
	"github.com/matheus3301/simchat/internal/engine"
	"github.com/matheus3301/simchat/internal/history"
	"github.com/matheus3301/simchat/internal/lock"
	"github.com/matheus3301/simchat/internal/logging"
	"github.com/matheus3301/simchat/internal/notify"
	"github.com/matheus3301/simchat/internal/outbox"
	"github.com/matheus3301/simchat/internal/rest"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/matheus3301/simchat/internal/status"
	"github.com/matheus3301/simchat/internal/store"
	intsync "github.com/matheus3301/simchat/internal/sync"
	"github.com/matheus3301/simchat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideProfile,
			provideLogger,
			provideBus,
			provideClock,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSession,
			provideHistory,
			provideDirectory,
			provideQueue,
			provideRouter,
			provideDialer,
			provideConnection,
			provideREST,
			provideLoader,
			provideComposer,
			provideEngine,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideProfile(p Params) (*config.Profile, error) {
	return config.LoadProfile(session.ProfilePath(p.ProfileName))
}

func provideLogger(p Params, prof *config.Profile) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    session.LogPath(p.ProfileName),
		Profile: p.ProfileName,
		Level:   prof.Log.Level,
		Quiet:   prof.Log.Quiet,
	})
}

func provideBus(clk clock.Clock) *bus.Bus {
	return bus.New(bus.WithClock(clk))
}

func provideClock() clock.Clock {
	return clock.Real()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(session.LockPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so that the database is only opened by
// the process holding it.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(session.AppDBPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	schema, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store opened",
		zap.String("path", db.Path()),
		zap.Uint("schema", schema.To),
		zap.Bool("migrated", schema.Changed()))
	return db, nil
}

func provideSession(p Params, prof *config.Profile, db *store.DB) *session.Session {
	return session.New(p.ProfileName, session.Identity{
		UserID:       prof.Identity.UserID,
		UserName:     prof.Identity.UserName,
		AccessToken:  prof.Identity.AccessToken,
		RefreshToken: prof.Identity.RefreshToken,
	}, db)
}

func provideHistory(sess *session.Session, clk clock.Clock, b *bus.Bus, logger *zap.Logger) *history.Store {
	return history.NewStore(sess.Storage, clk, b, logger)
}

func provideDirectory(b *bus.Bus) *directory.Directory {
	return directory.New(b)
}

func provideQueue(clk clock.Clock, b *bus.Bus) *notify.Queue {
	return notify.NewQueue(clk, b)
}

func provideRouter(sess *session.Session, h *history.Store, d *directory.Directory, q *notify.Queue,
	clk clock.Clock, b *bus.Bus, logger *zap.Logger) *intsync.Router {
	return intsync.NewRouter(sess, h, d, q, clk, b, logger)
}

func provideDialer(prof *config.Profile, sess *session.Session) transport.Dialer {
	return &transport.WebSocketDialer{URL: prof.Server.WSURL, Header: sess.Header}
}

func provideConnection(prof *config.Profile, dialer transport.Dialer, router *intsync.Router, sess *session.Session,
	clk clock.Clock, fsm *status.Machine, b *bus.Bus, logger *zap.Logger) *connection.Manager {
	cfg := connection.Config{
		ReconnectDelay: prof.Timing.ReconnectDelay.Duration,
		DialTimeout:    prof.Timing.DialTimeout.Duration,
	}
	return connection.New(cfg, dialer, router, sess, clk, fsm, b, logger)
}

func provideREST(prof *config.Profile, sess *session.Session, logger *zap.Logger) (*rest.Client, error) {
	return rest.New(rest.Config{
		BaseURL:    prof.Server.APIURL,
		HTTPClient: &http.Client{Timeout: prof.Timing.RequestTimeout.Duration},
		Logger:     logger,
	}, sess)
}

func provideLoader(prof *config.Profile, client *rest.Client, h *history.Store, b *bus.Bus, logger *zap.Logger) *intsync.Loader {
	return intsync.NewLoader(client, h, prof.Timing.RequestTimeout.Duration, b, logger)
}

func provideComposer(mgr *connection.Manager, sess *session.Session, h *history.Store,
	clk clock.Clock, b *bus.Bus, logger *zap.Logger) *outbox.Composer {
	return outbox.NewComposer(mgr, sess, h, clk, b, logger)
}

type engineParams struct {
	fx.In

	Profile   *config.Profile
	Session   *session.Session
	Conn      *connection.Manager
	History   *history.Store
	Directory *directory.Directory
	Queue     *notify.Queue
	Composer  *outbox.Composer
	Loader    *intsync.Loader
	REST      *rest.Client
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func provideEngine(p engineParams) *engine.Engine {
	return engine.New(engine.Deps{
		Session:        p.Session,
		Conn:           p.Conn,
		History:        p.History,
		Directory:      p.Directory,
		Queue:          p.Queue,
		Composer:       p.Composer,
		Loader:         p.Loader,
		Fetcher:        p.REST,
		Bus:            p.Bus,
		Logger:         p.Logger,
		RequestTimeout: p.Profile.Timing.RequestTimeout.Duration,
	})
}

func provideService(e *engine.Engine, sess *session.Session, clk clock.Clock, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(e, sess, clk, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, e *engine.Engine,
	sess *session.Session, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			srv.Start()

			if !sess.Identity().Known() {
				logger.Info("no identity configured, staying offline")
				return nil
			}
			if err := e.Connect(); err != nil {
				logger.Error("auto-connect failed", zap.Error(err))
				return nil
			}
			go func() {
				if _, err := e.FetchContacts(context.Background()); err != nil {
					logger.Warn("initial contact fetch failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := e.Disconnect(ctx); err != nil {
				logger.Warn("error disconnecting", zap.Error(err))
			}
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
