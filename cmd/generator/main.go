// Draftsmith generator - serves a model provider over gRPC
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/draftsmith/internal/config"
	"github.com/ashureev/draftsmith/internal/model"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := model.New(ctx, model.Options{
		Provider:         cfg.Generator.Backend,
		AnthropicAPIKey:  cfg.Model.AnthropicAPIKey,
		AnthropicBaseURL: cfg.Model.AnthropicBaseURL,
		GeminiAPIKey:     cfg.Model.GeminiAPIKey,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize generator backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeBackend(); closeErr != nil {
			slog.Error("Failed to close generator backend", "error", closeErr)
		}
	}()

	catalog, err := model.CatalogFor(cfg.Generator.Backend, cfg.ModelOverrides())
	if err != nil {
		slog.Error("Invalid model overrides", "error", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.Generator.ListenAddr)
	if err != nil {
		slog.Error("Failed to listen", "addr", cfg.Generator.ListenAddr, "error", err)
		os.Exit(1)
	}

	srv := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	model.RegisterGenerator(srv, model.WithCatalog(backend, catalog))

	go func() {
		slog.Info("Generator listening", "addr", lis.Addr().String(), "backend", cfg.Generator.Backend)
		if err := srv.Serve(lis); err != nil {
			slog.Error("Generator failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down generator...")

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Warn("Graceful stop timed out, forcing")
		srv.Stop()
	}

	slog.Info("Generator stopped")
}
