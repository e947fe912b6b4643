// Package app assembles and runs the gestor edge service: credential
// store, renewal coordination, session control and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nortesoft/gestor/internal/gestor/api"
	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/credstore/drivers/sqlite"
	"github.com/nortesoft/gestor/pkg/cryptox"
	"github.com/nortesoft/gestor/pkg/provider"
	"github.com/nortesoft/gestor/pkg/refresh"
	"github.com/nortesoft/gestor/pkg/session"
	"github.com/nortesoft/gestor/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

type Application struct {
	cfg    Config
	logger *slog.Logger

	db       *sqlite.Backend
	store    *credstore.Store
	provider *provider.Client
	coord    *refresh.Coordinator
	sessions *session.Controller

	server *http.Server
	router *api.Router
}

// New wires the application. Nothing starts running until Run.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gestor",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	app.initSession()
	app.initHTTP()

	return app, nil
}

func (app *Application) initStore() error {
	sealer, ephemeral, err := cryptox.LoadSealer(app.cfg.StoreKeyPath)
	if err != nil {
		return fmt.Errorf("load store key: %w", err)
	}
	if ephemeral {
		app.logger.Warn("no store key configured, sealed credentials will not survive a restart")
	}

	db, err := sqlite.NewBackend(app.cfg.DatabaseFile, sealer)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	app.db = db

	backends := []credstore.Backend{db}
	if app.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
		backends = append(backends, credstore.NewRedisBackend(client, "gestor:credentials"))
		app.logger.Info("credential mirror enabled", "addr", app.cfg.RedisAddr)
	}

	app.store = credstore.New(backends, credstore.Options{Logger: app.logger})
	return nil
}

func (app *Application) initSession() {
	app.provider = provider.NewClient(
		app.cfg.ProviderBaseURL,
		app.cfg.ProviderClientID,
		app.cfg.ProviderClientSecret,
	)
	app.coord = refresh.NewCoordinator(app.store, app.provider, refresh.Options{
		Logger: app.logger,
	})
	app.sessions = session.NewController(app.store, app.coord, app.provider, session.Options{
		Logger: app.logger,
	})
}

func (app *Application) initHTTP() {
	app.router = api.NewRouter(api.Options{
		Sessions:       app.sessions,
		BuildVersion:   BuildVersion,
		Logger:         app.logger,
		AllowedOrigins: app.cfg.AllowedOrigins,
		Readiness: []api.ReadinessCheck{
			{Name: "credentials", Probe: app.db.Ping},
		},
	})

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the HTTP server, the session controller and the external
// change watcher, and blocks until a shutdown signal or a fatal error.
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.logger.Info("gestor starting", "port", app.cfg.Port, "version", BuildVersion)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.sessions.Run(gctx)
	})

	g.Go(func() error {
		return app.store.Watch(gctx, app.cfg.WatchInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		return app.shutdown()
	})

	err := g.Wait()
	app.logger.Info("gestor stopped")
	return err
}

func (app *Application) shutdown() error {
	app.logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing credential store", "error", err)
	}

	return nil
}
