package daemon

import (
	"context"

	"github.com/matheus3301/wabot/internal/ai"
	"github.com/matheus3301/wabot/internal/api"
	"github.com/matheus3301/wabot/internal/autoreply"
	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/campaign"
	"github.com/matheus3301/wabot/internal/config"
	"github.com/matheus3301/wabot/internal/conn"
	"github.com/matheus3301/wabot/internal/dedup"
	"github.com/matheus3301/wabot/internal/lock"
	"github.com/matheus3301/wabot/internal/logging"
	"github.com/matheus3301/wabot/internal/outbox"
	"github.com/matheus3301/wabot/internal/remote"
	"github.com/matheus3301/wabot/internal/session"
	"github.com/matheus3301/wabot/internal/settings"
	"github.com/matheus3301/wabot/internal/store"
	intsync "github.com/matheus3301/wabot/internal/sync"
	"github.com/matheus3301/wabot/internal/transport"
	"github.com/matheus3301/wabot/internal/txlog"
	"github.com/matheus3301/wabot/internal/wa"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance string
	Config   config.Daemon

	// Dir overrides the instance directory; empty = session.Dir(Instance).
	Dir string
	// Registry overrides the transport factories.
	Registry transport.Registry
	// Generator overrides the Gemini-backed reply generator.
	Generator ai.Generator
	// Logger overrides the file logger.
	Logger *zap.Logger
}

func (p Params) paths() session.Paths {
	if p.Dir != "" {
		return session.PathsIn(p.Dir)
	}
	return session.PathsIn(session.Dir(p.Instance))
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	p.Config = p.Config.WithDefaults()
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideSettings,
			provideTxLog,
			provideMachine,
			provideReconciler,
			provideManager,
			provideSender,
			provideGenerator,
			provideDispatcher,
			provideEngine,
			provideCampaigns,
			provideAPI,
			provideScheduler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(p.paths().Log, p.Instance)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	paths := p.paths()
	if err := paths.Ensure(); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.Instance))
	l, err := lock.Acquire(paths.Dir, p.Config.Endpoint)
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.paths().AppDB
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSettings(db *store.DB, b *bus.Bus) *settings.Store {
	return settings.New(db, b)
}

func provideTxLog(p Params, b *bus.Bus) *txlog.Log {
	return txlog.New(p.Config.TxLogCapacity, b)
}

func provideMachine(b *bus.Bus) *conn.Machine {
	return conn.NewMachine(b)
}

func provideReconciler(p Params, db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, b, logger, p.Config.SyncTimeout.Duration)
}

func defaultRegistry(p Params) transport.Registry {
	return transport.Registry{
		"ws://":   remote.Factory,
		"wss://":  remote.Factory,
		wa.Scheme: wa.NewFactory(p.paths().DeviceDB),
	}
}

func provideManager(p Params, m *conn.Machine, b *bus.Bus, st *settings.Store, rec *intsync.Reconciler, logger *zap.Logger) *conn.Manager {
	reg := p.Registry
	if reg == nil {
		reg = defaultRegistry(p)
	}
	return conn.NewManager(m, b, conn.ManagerConfig{
		Build: reg.Build,
		Transport: transport.Options{
			Bus:               b,
			Logger:            logger,
			ReconnectAttempts: p.Config.ReconnectAttempts,
			ReconnectBackoff:  p.Config.ReconnectBackoff.Duration,
			BlastInterval:     p.Config.BlastInterval.Duration,
		},
		Endpoints:       st,
		Sync:            rec,
		Logger:          logger,
		SettleDelay:     p.Config.SettleDelay.Duration,
		SwitchStepDelay: p.Config.SwitchStepDelay.Duration,
	})
}

func provideSender(db *store.DB, m *conn.Manager, b *bus.Bus, tx *txlog.Log, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, m, b, tx, logger)
}

func provideGenerator(p Params, logger *zap.Logger) ai.Generator {
	if p.Generator != nil {
		return p.Generator
	}
	return ai.NewGenAI(ai.GenAIConfig{
		Model:       p.Config.AIModel,
		Temperature: p.Config.AITemperature,
		Logger:      logger,
	})
}

func provideDispatcher(st *settings.Store, gen ai.Generator, sender *outbox.Sender, logger *zap.Logger) *autoreply.Dispatcher {
	return autoreply.NewDispatcher(autoreply.Config{
		Settings:  st,
		Generator: gen,
		Outbox:    sender,
		Logger:    logger,
	})
}

func provideEngine(p Params, db *store.DB, b *bus.Bus, rec *intsync.Reconciler, m *conn.Manager, tx *txlog.Log, d *autoreply.Dispatcher, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(intsync.Deps{
		DB:         db,
		Bus:        b,
		Logger:     logger,
		Filter:     dedup.NewFilter(p.Config.DedupCapacity),
		Reconciler: rec,
		Conn:       m,
		TxLog:      tx,
		Replies:    d,
	})
}

func provideCampaigns(db *store.DB, m *conn.Manager, b *bus.Bus, tx *txlog.Log, logger *zap.Logger) *campaign.Service {
	return campaign.New(db, m, b, tx, logger)
}

func provideAPI(db *store.DB, b *bus.Bus, m *conn.Manager, e *intsync.Engine, rec *intsync.Reconciler, sender *outbox.Sender, cs *campaign.Service, st *settings.Store, tx *txlog.Log, logger *zap.Logger) *api.Server {
	return api.New(api.Deps{
		DB:         db,
		Bus:        b,
		Conn:       m,
		Engine:     e,
		Reconciler: rec,
		Outbox:     sender,
		Campaigns:  cs,
		Settings:   st,
		TxLog:      tx,
		Logger:     logger,
	})
}

// provideScheduler builds the directory resync job. An empty schedule leaves
// the scheduler without entries.
func provideScheduler(p Params, m *conn.Manager, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	if p.Config.ResyncSchedule == "" {
		return c, nil
	}
	_, err := c.AddFunc(p.Config.ResyncSchedule, func() {
		if m.Ready() != nil {
			return
		}
		if err := m.RequestContacts(context.Background()); err != nil {
			logger.Warn("scheduled resync failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	logger.Info("directory resync scheduled", zap.String("schedule", p.Config.ResyncSchedule))
	return c, nil
}

// openEndpoint reconnects to the last endpoint an operator opened, falling
// back to the configured one.
func openEndpoint(ctx context.Context, p Params, st *settings.Store, m *conn.Manager, logger *zap.Logger) {
	endpoint, err := st.Endpoint()
	if err != nil {
		logger.Warn("read persisted endpoint", zap.Error(err))
	}
	if endpoint == "" {
		endpoint = p.Config.Endpoint
	}
	if err := m.Open(ctx, endpoint); err != nil {
		logger.Error("open endpoint failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
}

type lifecycleDeps struct {
	fx.In

	Params     Params
	Server     *Server
	Lock       *lock.Lock
	DB         *store.DB
	Settings   *settings.Store
	Manager    *conn.Manager
	Reconciler *intsync.Reconciler
	Engine     *intsync.Engine
	Sender     *outbox.Sender
	Dispatcher *autoreply.Dispatcher
	API        *api.Server
	Scheduler  *cron.Cron
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	logger := d.Logger
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// The engine subscribes first so no transport event is missed.
			d.Engine.Start(context.Background())
			d.Sender.Start(context.Background())

			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if err := d.API.Start(d.Params.Config.HTTPAddr); err != nil {
				return err
			}
			d.Scheduler.Start()

			openEndpoint(ctx, d.Params, d.Settings, d.Manager, logger)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			<-d.Scheduler.Stop().Done()
			if err := d.API.Shutdown(ctx); err != nil {
				logger.Warn("operator API shutdown", zap.Error(err))
			}
			d.Dispatcher.Close()
			// The sender goes first so queued entries stay queued instead of
			// failing against a closed manager.
			d.Sender.Stop()
			if err := d.Manager.Close(); err != nil {
				logger.Warn("close transport", zap.Error(err))
			}
			d.Engine.Stop()
			d.Reconciler.Stop()
			d.Server.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				logger.Warn("close store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
