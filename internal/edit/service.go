// Package edit is the responder side of the streaming edit transport: it
// validates requests, renders prompts, and relays model fragments as
// framed events over SSE or WebSocket.
package edit

import (
	"context"
	"iter"
	"log/slog"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/model"
	"github.com/ashureev/draftsmith/internal/prompt"
)

// Plan is a validated request rendered for the model.
type Plan struct {
	Generation   model.Generation
	Selector     model.ID
	PromptTokens int
}

// Service turns edit requests into model generations.
type Service struct {
	streamer model.Streamer
	catalog  model.Catalog
	logger   *slog.Logger
}

// NewService creates a Service. Selectors are mapped to provider model
// names through catalog.
func NewService(streamer model.Streamer, catalog model.Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{streamer: streamer, catalog: catalog, logger: logger}
}

// Prepare validates req and renders its prompt.
func (s *Service) Prepare(req domain.EditRequest) (Plan, error) {
	if err := Validate(req); err != nil {
		return Plan{}, err
	}
	id, err := model.ParseID(req.Model)
	if err != nil {
		return Plan{}, invalid("Unknown model: " + req.Model)
	}
	name, err := s.catalog.Resolve(string(id))
	if err != nil {
		return Plan{}, invalid("Unknown model: " + req.Model)
	}

	text := prompt.Build(req)
	plan := Plan{
		Generation: model.Generation{
			Prompt: text,
			System: prompt.SystemPrompt(req),
			Model:  name,
		},
		Selector:     id,
		PromptTokens: prompt.EstimateTokens(text),
	}
	s.logger.Debug("edit prompt prepared",
		"scope", req.EditLevel,
		"chat", req.IsChat(),
		"targets", len(req.Targets),
		"model", name,
		"prompt_tokens", plan.PromptTokens,
	)
	return plan, nil
}

// Stream starts the generation for plan.
func (s *Service) Stream(ctx context.Context, plan Plan) iter.Seq2[string, error] {
	return s.streamer.Stream(ctx, plan.Generation)
}
