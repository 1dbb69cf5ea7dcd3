// Draftsmith - AI-assisted markdown editing server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/draftsmith/internal/api"
	"github.com/ashureev/draftsmith/internal/config"
	"github.com/ashureev/draftsmith/internal/edit"
	"github.com/ashureev/draftsmith/internal/identity"
	"github.com/ashureev/draftsmith/internal/middleware"
	"github.com/ashureev/draftsmith/internal/model"
	"github.com/ashureev/draftsmith/internal/store"
	"github.com/ashureev/draftsmith/internal/version"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.DevMode, "provider", cfg.Model.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Version history.
	versions, err := version.NewFileStore(cfg.VersionsDir)
	if err != nil {
		slog.Error("Failed to initialize version store", "error", err)
		os.Exit(1)
	}
	slog.Info("Version store ready", "dir", versions.Dir())

	// Exchange journal (optional).
	var journal store.Journal = store.NopJournal{}
	if cfg.Journal.Enabled {
		sq, err := store.NewSQLite(cfg.Journal.Path)
		if err != nil {
			slog.Error("Failed to initialize journal", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := sq.Close(); closeErr != nil {
				slog.Error("Failed to close journal", "error", closeErr)
			}
		}()
		if err := sq.Ping(ctx); err != nil {
			slog.Error("Journal health check failed", "error", err)
			os.Exit(1)
		}
		journal = sq
		store.StartRetentionWorker(ctx, journal, cfg.Journal.Retention)
		slog.Info("Journal ready", "path", cfg.Journal.Path, "retention", cfg.Journal.Retention)
	}

	// Model provider.
	streamer, closeStreamer, err := model.New(ctx, model.Options{
		Provider:         cfg.Model.Provider,
		AnthropicAPIKey:  cfg.Model.AnthropicAPIKey,
		AnthropicBaseURL: cfg.Model.AnthropicBaseURL,
		GeminiAPIKey:     cfg.Model.GeminiAPIKey,
		GeneratorAddr:    cfg.Model.GeneratorAddr,
		ConnectTimeout:   cfg.Model.ConnectTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize model provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeStreamer(); closeErr != nil {
			slog.Error("Failed to close model provider", "error", closeErr)
		}
	}()

	catalog, err := model.CatalogFor(cfg.Model.Provider, cfg.ModelOverrides())
	if err != nil {
		slog.Error("Invalid model overrides", "error", err)
		os.Exit(1)
	}

	// Handlers.
	editService := edit.NewService(streamer, catalog, logger)
	editHandler := edit.NewHandler(editService, journal, cfg, logger)
	defer editHandler.Close()
	apiHandler := api.NewHandler(versions, journal, cfg.SSE.MaxRequestBodySize, logger)

	origins := cfg.AllowedOrigins
	if cfg.DevMode {
		origins = []string{"*"}
	}

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(origins))
	r.Use(identity.Middleware(cfg.DevMode))

	apiHandler.RegisterRoutes(r)
	editHandler.RegisterRoutes(r)

	// SSE and WebSocket responses are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
