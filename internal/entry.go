// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/inkwell/internal/api"
	"github.com/starford/inkwell/internal/blogservice"
	"github.com/starford/inkwell/internal/journal"
	"github.com/starford/inkwell/internal/mcpserver"
	"github.com/starford/inkwell/internal/oplog"
	"github.com/starford/inkwell/internal/profile"
	"github.com/starford/inkwell/internal/sse"
)

// Runtime holds the collaborators shared by every run mode.
type Runtime struct {
	Config   *Config
	Logger   *slog.Logger
	Oplog    *oplog.File
	Journal  *journal.DB // nil when disabled
	Profiles *profile.Store
	Blogs    *blogservice.Holder
}

// Open builds the runtime: process logger, operations log, journal, profile
// store and the blog service for the stored profile.
func Open(opts ...Option) (*Runtime, error) {
	return open(nil, opts...)
}

func open(notifier blogservice.Notifier, opts ...Option) (*Runtime, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	rt := &Runtime{Config: cfg, Logger: logger, Profiles: profile.NewStore(cfg.Profile.Path)}

	var err error
	if rt.Oplog, err = oplog.Open(cfg.Oplog.Path); err != nil {
		return nil, fmt.Errorf("init oplog: %w", err)
	}
	if cfg.Journal.Enabled() {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			rt.Close()
			return nil, fmt.Errorf("init journal: %w", err)
		}
		if rt.Journal, err = journal.Open(cfg.Journal.Path); err != nil {
			rt.Close()
			return nil, fmt.Errorf("init journal: %w", err)
		}
	}

	p, err := rt.Profiles.Load()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := p.Check(); err != nil {
		logger.Warn("profile incomplete, blog operations will fail until it is set",
			slog.String("path", cfg.Profile.Path),
			slog.String("error", err.Error()))
	}

	// The operations log records every mutation whatever the process level.
	svcOpts := []blogservice.Option{blogservice.WithLogger(rt.Oplog.Logger(slog.LevelInfo))}
	if rt.Journal != nil {
		svcOpts = append(svcOpts, blogservice.WithRecorder(rt.Journal))
	}
	if notifier != nil {
		svcOpts = append(svcOpts, blogservice.WithNotifier(notifier))
	}
	if rt.Blogs, err = blogservice.NewHolder(p, app.httpClient, svcOpts...); err != nil {
		rt.Close()
		return nil, fmt.Errorf("init blog service: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("profile_path", cfg.Profile.Path),
		slog.String("oplog_path", cfg.Oplog.Path),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("owner", p.Owner),
		slog.String("repo", p.Repo),
		slog.String("branch", p.Branch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return rt, nil
}

// Close releases the journal and the operations log.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Journal != nil {
		errs = append(errs, rt.Journal.Close())
	}
	if rt.Oplog != nil {
		errs = append(errs, rt.Oplog.Close())
	}
	return errors.Join(errs...)
}

// Bridge returns the channel dispatcher over the runtime's collaborators.
func (rt *Runtime) Bridge() *api.Bridge {
	return api.NewBridge(api.Deps{
		Blogs:    rt.Blogs,
		Profiles: rt.Profiles,
		Log:      rt.Oplog,
		Journal:  rt.Journal,
	})
}

// reloadOnChange swaps the blog service whenever the profile file changes.
func (rt *Runtime) reloadOnChange(ctx context.Context) error {
	err := profile.Watch(ctx, rt.Profiles, rt.Logger, func(p profile.Profile) {
		if err := rt.Blogs.Reload(p); err != nil {
			rt.Logger.Error("blog service reload failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		// The bridge keeps working; config saves through it still reload.
		rt.Logger.Warn("profile watcher unavailable", slog.String("error", err.Error()))
	}
	return nil
}

// Run serves the bridge over HTTP until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	broker := sse.NewBroker(cfg.Events.IndexThrottle, cfg.Events.KeepAlive)
	defer broker.Close()

	rt, err := open(broker, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.Logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", api.Live)
	r.Get("/health/ready", api.Ready(rt.Blogs))

	r.Mount("/ipc", api.NewRouter(rt.Bridge(), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.reloadOnChange(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		// SSE streams never end on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}

	rt, err := open(nil, append(opts, WithLogOutput(os.Stderr))...)
	if err != nil {
		return err
	}
	defer rt.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go rt.reloadOnChange(watchCtx) //nolint:errcheck // always nil

	srv := mcpserver.New(rt.Blogs, app.version)
	rt.Logger.Info("Starting MCP server on stdio")
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
