package model

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiStreamer streams completions from the Gemini API.
type GeminiStreamer struct {
	client *genai.Client
	logger *slog.Logger
}

// NewGeminiStreamer creates a Gemini client authenticated with apiKey.
func NewGeminiStreamer(ctx context.Context, apiKey string, logger *slog.Logger) (*GeminiStreamer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiStreamer{client: client, logger: logger}, nil
}

// Stream implements Streamer.
func (s *GeminiStreamer) Stream(ctx context.Context, g Generation) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		m := s.client.GenerativeModel(g.Model)
		if g.System != "" {
			m.SystemInstruction = genai.NewUserContent(genai.Text(g.System))
		}

		s.logger.Debug("Gemini stream request", "model", g.Model, "prompt_bytes", len(g.Prompt))

		it := m.GenerateContentStream(ctx, genai.Text(g.Prompt))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield("", fmt.Errorf("%w: %w", ErrStream, err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// Close releases the underlying client.
func (s *GeminiStreamer) Close() error {
	return s.client.Close()
}

// responseText concatenates the text parts of every candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}

var _ Streamer = (*GeminiStreamer)(nil)
