// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/herald/internal/api"
	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/autosync"
	"github.com/starford/herald/internal/ledger"
	"github.com/starford/herald/internal/preview"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/sse"
	"github.com/starford/herald/internal/storage"
	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/vault"
)

// services are the collaborators shared by every command.
type services struct {
	cfg    *Config
	log    *slog.Logger
	store  storage.Provider
	vault  *vault.Vault
	db     *ledger.DB
	client *substack.Client
}

func (s *services) Close() error {
	return s.db.Close()
}

// publisher builds the publish workflow; notifier may be nil.
func (s *services) publisher(notifier publisher.Notifier) *publisher.Publisher {
	opts := []publisher.Option{
		publisher.WithLedger(s.db),
		publisher.WithDefaults(s.cfg.Substack.Defaults()),
		publisher.WithMaxImageBytes(s.cfg.Images.MaxBytes),
		publisher.WithLogger(s.log),
	}
	if notifier != nil {
		opts = append(opts, publisher.WithNotifier(notifier))
	}
	return publisher.New(s.vault, s.client, opts...)
}

func newLogger(level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	logger := newLogger(app.config.App.LogLevel, app.logOutput)
	slog.SetDefault(logger)
	return app, logger, nil
}

// newServices opens the vault and the ledger and builds the remote client.
// With requireSession an empty cookie is an error; otherwise the client is
// built anyway and remote calls report an invalid session.
func newServices(ctx context.Context, cfg *Config, logger *slog.Logger, requireSession bool) (*services, error) {
	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	v := vault.New(store)

	clientOpts := cfg.Substack.ClientOptions(logger)
	client, err := substack.NewClientFromProvider(ctx, substack.StaticCredential(cfg.Substack.Cookie), clientOpts...)
	if err != nil {
		if requireSession || !errors.Is(err, apperr.ErrSessionInvalid) {
			return nil, err
		}
		logger.Warn("no session cookie configured; remote calls will fail until one is set")
		client = substack.NewClient("", clientOpts...)
	}

	db, err := ledger.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	// Pick up draft IDs written by other tools.
	if cfg.Substack.Publication != "" {
		stats, err := ledger.Sync(ctx, db, v, cfg.Substack.Publication, logger)
		if err != nil {
			logger.Warn("initial ledger sync failed", slog.String("error", err.Error()))
		} else if stats.Imported > 0 || stats.Removed > 0 {
			logger.Info("ledger synced", slog.Int("imported", stats.Imported), slog.Int("removed", stats.Removed))
		}
	}

	return &services{cfg: cfg, log: logger, store: store, vault: v, db: db, client: client}, nil
}

// Run starts the HTTP server (and the autosync watcher when enabled).
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("publication", cfg.Substack.Publication),
		slog.Bool("autosync", cfg.Autosync.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, err := newServices(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	pub := svc.publisher(broker)

	apiRouter := api.NewRouter(api.Deps{
		Vault:       svc.vault,
		Publisher:   pub,
		Remote:      svc.client,
		Ledger:      svc.db,
		Renderer:    preview.New(),
		Publication: cfg.Substack.Publication,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Images.MaxBytes)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.db.PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Re-save drafts of edited notes.
	if cfg.Autosync.Enabled {
		if cfg.Substack.Publication == "" {
			logger.Warn("autosync disabled: substack.publication is not set")
		} else {
			syncer := autosync.New(svc.vault, pub, svc.db, autosync.Config{
				Publication: cfg.Substack.Publication,
				Debounce:    cfg.Autosync.Debounce,
				Notifier:    broker,
				Logger:      logger,
			})
			g.Go(func() error {
				if err := syncer.Run(gCtx); err != nil {
					logger.Error("autosync stopped", slog.String("error", err.Error()))
				}
				return nil
			})
		}
	}

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
