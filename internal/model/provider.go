package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderGRPC      = "grpc"
)

// Options selects and configures a provider.
type Options struct {
	Provider         string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	GeminiAPIKey     string
	GeneratorAddr    string
	ConnectTimeout   time.Duration
}

// New builds the Streamer for opts.Provider. The returned close function
// releases provider resources and is never nil.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Streamer, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Provider {
	case ProviderAnthropic, "":
		if opts.AnthropicAPIKey == "" {
			return nil, noop, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return NewAnthropicStreamer(opts.AnthropicBaseURL, opts.AnthropicAPIKey, logger), noop, nil

	case ProviderGemini:
		if opts.GeminiAPIKey == "" {
			return nil, noop, errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
		s, err := NewGeminiStreamer(ctx, opts.GeminiAPIKey, logger)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil

	case ProviderGRPC:
		if opts.GeneratorAddr == "" {
			return nil, noop, errors.New("GENERATOR_ADDR is required for the grpc provider")
		}
		s, err := NewGRPCStreamer(opts.GeneratorAddr, logger)
		if err != nil {
			return nil, noop, err
		}
		timeout := opts.ConnectTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		readyCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := s.WaitForReady(readyCtx); err != nil {
			if closeErr := s.Close(); closeErr != nil {
				logger.Warn("failed to close generator connection after readiness failure", "error", closeErr)
			}
			return nil, noop, fmt.Errorf("generator at %s not ready: %w", opts.GeneratorAddr, err)
		}
		return s, s.Close, nil
	}

	return nil, noop, fmt.Errorf("unknown model provider %q", opts.Provider)
}
