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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/elena-cabrera/markdown-os/internal/api"
	"github.com/elena-cabrera/markdown-os/internal/docservice"
	"github.com/elena-cabrera/markdown-os/internal/live"
	"github.com/elena-cabrera/markdown-os/internal/search"
	"github.com/elena-cabrera/markdown-os/internal/storage"
	"github.com/elena-cabrera/markdown-os/internal/watch"
	"github.com/elena-cabrera/markdown-os/internal/web"
)

// watcherStopTimeout bounds how long shutdown waits for the watcher
// goroutine to drain before giving up and logging.
const watcherStopTimeout = 3 * time.Second

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("mode", cfg.Workspace.Mode),
		slog.String("path", cfg.Workspace.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	marker := &watch.Marker{}

	// Build the mode-specific document service and watch target.
	var (
		svc      *docservice.Service
		watchCfg = watch.Config{
			Debounce:    cfg.Watch.Debounce.Std(),
			Suppression: cfg.Watch.Suppression.Std(),
		}
	)
	switch docservice.Mode(cfg.Workspace.Mode) {
	case docservice.ModeFile:
		file, err := storage.NewFile(cfg.Workspace.Path)
		if err != nil {
			return fmt.Errorf("init file store: %w", err)
		}
		if _, err := file.Stat(); err != nil {
			return fmt.Errorf("open %s: %w", cfg.Workspace.Path, err)
		}
		svc = docservice.NewFileService(file, marker, logger)
		watchCfg.TargetFile = file.Path()

	case docservice.ModeFolder:
		ws, err := storage.NewWorkspace(cfg.Workspace.Path, cfg.Workspace.Extensions)
		if err != nil {
			return fmt.Errorf("init workspace: %w", err)
		}
		idx, err := search.Open(cfg.Search.Path)
		if err != nil {
			return fmt.Errorf("init search index: %w", err)
		}
		defer idx.Close()

		// Bring the index up to date with what is on disk.
		if err := search.Sync(idx, ws, logger); err != nil {
			logger.Warn("initial index sync failed", slog.String("error", err.Error()))
		}

		svc = docservice.NewFolderService(ws, idx, marker, logger)
		watchCfg.Root = ws.Root()
		watchCfg.Extensions = cfg.Workspace.ExtensionsOrDefault()

	default:
		return fmt.Errorf("unknown workspace mode %q", cfg.Workspace.Mode)
	}
	defer svc.Close()

	hub := live.NewHub()
	defer hub.Close()

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Editor page and assets.
	r.Get("/", web.Index)
	r.Handle("/static/*", web.StaticHandler())
	r.Get("/images/*", api.NewImageHandler(svc).Serve)

	// Mount API routes under /api, with the SSE stream inside the auth group.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, hub))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	events := make(chan watch.Event, 64)
	watcherDone := make(chan struct{})

	// cancel releases the watcher and dispatcher once shutdown begins.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	// Filesystem watcher.
	g.Go(func() error {
		defer close(watcherDone)
		if err := watch.Run(gCtx, watchCfg, marker, logger, events); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	// Dispatcher: drains watcher events and fans them out to live
	// subscribers, so the watcher loop never touches the broadcast
	// transport.
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case ev := <-events:
				path, content, ok := svc.ExternalChange(ev.Path)
				if !ok {
					continue
				}
				hub.Broadcast(live.FileChanged(path, content))
				logger.Debug("broadcast external change", slog.String("path", path))
			}
		}
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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

		logger.Info("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Release the watcher and dispatcher goroutines.
		cancel()

		// Give the watcher a bounded window to wind down; a stuck
		// watcher is logged, not fatal.
		select {
		case <-watcherDone:
		case <-time.After(watcherStopTimeout):
			logger.Warn("watcher did not stop in time",
				slog.Duration("timeout", watcherStopTimeout))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
