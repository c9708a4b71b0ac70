package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	datadb "github.com/yungbote/ielts-tutor-backend/internal/data/db"
	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	apphttp "github.com/yungbote/ielts-tutor-backend/internal/http"
	httpH "github.com/yungbote/ielts-tutor-backend/internal/http/handlers"
	"github.com/yungbote/ielts-tutor-backend/internal/observability"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/shutdown"
	"github.com/yungbote/ielts-tutor-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *datadb.Service
	Router   *gin.Engine
	Repos    Repos
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Emitter  *realtime.Emitter

	server       *apphttp.Server
	shutdownOTel func(context.Context) error
	cancel       context.CancelFunc
}

// NewLogger builds the process logger from LOG_MODE, defaulting to development.
func NewLogger(mode string) (*logger.Logger, error) {
	if mode == "" {
		mode = "development"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenStore connects the database, migrates it and returns the key-value store on top.
func OpenStore(log *logger.Logger, cfg Config) (*datadb.Service, localstore.Store, error) {
	svc, err := datadb.Open(datadb.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		return nil, nil, fmt.Errorf("database automigrate: %w", err)
	}
	return svc, localstore.NewGormStore(svc.DB(), log), nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	if err := checkSecrets(log, cfg); err != nil {
		return nil, err
	}
	observability.Init(log, observability.Config{Enabled: cfg.MetricsEnabled})
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.LogMode,
		Endpoint:    cfg.OtelEndpoint,
		Headers:     observability.ParseHeaders(cfg.OtelHeaders),
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})

	dbsvc, _, err := OpenStore(log, cfg)
	if err != nil {
		return nil, err
	}

	reposet := wireRepos(dbsvc.DB(), log)
	clientset, err := wireClients(ctx, log, cfg, reposet)
	if err != nil {
		_ = dbsvc.Close()
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	var pub realtime.Publisher
	if clientset.Bus != nil {
		pub = clientset.Bus
	}
	emitter := realtime.NewEmitter(log, hub, pub)

	serviceset := wireServices(log, cfg, reposet, clientset, emitter)
	handlerset := wireHandlers(log, serviceset, clientset, hub, httpH.HealthProbe{Name: "db", Check: dbsvc.Ping})
	middleware := wireMiddleware(log, serviceset)
	server := apphttp.NewServer(routerConfig(log, cfg, handlerset, middleware))

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           dbsvc,
		Router:       server.Engine,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		SSEHub:       hub,
		Emitter:      emitter,
		server:       server,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Start launches the background workers: snapshot replication, the idle conversation reaper,
// the SSE bus forwarder and the metrics endpoint.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.Services.Replicator.Start(ctx)
	a.Services.Conversations.StartReaper(ctx)

	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			a.Log.Warn("SSE bus forwarder failed to start", "error", err)
		}
	}

	if m := observability.Current(); m != nil {
		m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		if a.Cfg.RedisAddr != "" {
			m.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr)
		}
	}
}

// Run serves HTTP until ctx ends, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Start(ctx)
	defer a.Close()
	return a.server.Run(ctx, a.Cfg.HTTPAddr, a.Cfg.HTTPShutdownTimeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	err := shutdown.Drain(a.Cfg.HTTPShutdownTimeout,
		shutdown.Step{Name: "conversations", Fn: func(context.Context) error {
			if a.Services.Conversations != nil {
				a.Services.Conversations.CloseAll()
			}
			return nil
		}},
		shutdown.Step{Name: "replication", Fn: func(ctx context.Context) error {
			if a.Services.Replicator == nil {
				return nil
			}
			a.Services.Replicator.Stop()
			a.Services.Replicator.Flush(ctx)
			return ctx.Err()
		}},
		shutdown.Step{Name: "emitter", Fn: func(context.Context) error {
			if a.Emitter != nil {
				a.Emitter.Close()
			}
			return nil
		}},
		shutdown.Step{Name: "clients", Fn: func(context.Context) error {
			a.Clients.Close()
			return nil
		}},
		shutdown.Step{Name: "db", Fn: func(context.Context) error {
			if a.DB == nil {
				return nil
			}
			return a.DB.Close()
		}},
		shutdown.Step{Name: "otel", Fn: func(ctx context.Context) error {
			if a.shutdownOTel == nil {
				return nil
			}
			return a.shutdownOTel(ctx)
		}},
	)
	if a.Log != nil {
		if err != nil {
			a.Log.Warn("Shutdown finished with errors", "error", err)
		}
		a.Log.Sync()
	}
}
