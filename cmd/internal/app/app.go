// Package app wires the Fleetdeck server runtime: config, logging, auth, HTTP
// routes, and the realtime push gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fleetdeck/cmd/internal/audit"
	"fleetdeck/cmd/internal/auth/api"
	"fleetdeck/cmd/internal/auth/gateway"
	"fleetdeck/cmd/internal/auth/session"
	"fleetdeck/cmd/internal/auth/token"
	"fleetdeck/cmd/internal/directory"
	"fleetdeck/cmd/internal/realtime"
)

// App is the Fleetdeck server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	auditFile *audit.FileSink

	sessions *session.Store
	auth     *gateway.Service
	authAPI  *api.Handler

	registry *realtime.Registry
	router   *realtime.Router
	ws       *realtime.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	codecCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec(codecCfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	var sinks []audit.Sink
	if cfg.AuditLogPath != "" {
		fileSink, err := audit.NewFileSink(cfg.AuditLogPath)
		if err != nil {
			return nil, err
		}
		a.auditFile = fileSink
		sinks = append(sinks, fileSink)
	}
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		a.dbEnabled = true
		sinks = append(sinks, audit.NewPostgresSink(pool))
		log.Info("db.enabled.audit_sink")
	} else {
		log.Info("db.disabled.inmemory_only")
	}
	auditor := audit.NewRecorder(log, sinks...)

	users := directory.NewInMemory()
	if cfg.SeedDemoUsers {
		if err := directory.SeedDemoUsers(users); err != nil {
			return nil, err
		}
		log.Info("directory.demo_users.seeded")
	}

	a.sessions = session.NewStore(session.LoadConfigFromEnv(), log)
	a.auth = gateway.NewService(users, codec, a.sessions, auditor, log)
	a.authAPI = api.NewHandler(a.auth, log)

	a.registry = realtime.NewRegistry(log, cfg.HeartbeatInterval)
	a.router = realtime.NewRouter(log, a.registry)
	a.ws = realtime.NewGateway(log, a.registry, a.router, a.auth)

	return a, nil
}

// Router exposes the broadcast fanout for server-side producers.
func (a *App) Router() *realtime.Router { return a.router }

// Run starts the HTTP server and background sweepers, blocking until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go a.sessions.Run(bgCtx)
	go a.registry.Run(bgCtx)

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.authAPI, a.auth, a.router)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(WithCORS(mux, a.cfg, a.log)), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if a.auditFile != nil {
		if err := a.auditFile.Close(); err != nil {
			a.log.Error("audit.close.fail", "err", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
