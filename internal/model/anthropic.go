package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 16384
)

// AnthropicStreamer streams completions from the Anthropic Messages API.
type AnthropicStreamer struct {
	baseURL    string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicStreamer creates a streamer. An empty baseURL selects the
// public API endpoint.
func NewAnthropicStreamer(baseURL, apiKey string, logger *slog.Logger) *AnthropicStreamer {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicStreamer{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		maxTokens: defaultMaxTokens,
		// No client timeout: generations are bounded by the caller's context.
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Stream implements Streamer.
func (a *AnthropicStreamer) Stream(ctx context.Context, g Generation) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := json.Marshal(anthropicRequest{
			Model:     g.Model,
			MaxTokens: a.maxTokens,
			System:    g.System,
			Messages:  []anthropicMessage{{Role: "user", Content: g.Prompt}},
			Stream:    true,
		})
		if err != nil {
			yield("", fmt.Errorf("encode request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			yield("", fmt.Errorf("build request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		a.logger.Debug("Anthropic stream request", "model", g.Model, "prompt_bytes", len(g.Prompt))

		resp, err := a.httpClient.Do(req)
		if err != nil {
			yield("", fmt.Errorf("%w: %w", ErrRequestFailed, err))
			return
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				a.logger.Debug("failed to close anthropic response body", "error", closeErr)
			}
		}()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			yield("", fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(msg))))
			return
		}

		a.relay(ctx, resp.Body, yield)
	}
}

// relay reads SSE lines and yields text deltas until message_stop or an
// error event. A body that ends before message_stop yields ErrStream.
func (a *AnthropicStreamer) relay(ctx context.Context, r io.Reader, yield func(string, error) bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			a.logger.Debug("skipping malformed anthropic event", "error", err)
			continue
		}

		switch ev.Type {
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				if !yield(ev.Delta.Text, nil) {
					return
				}
			}
		case "message_stop":
			return
		case "error":
			msg := "unknown error"
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Message
			}
			yield("", fmt.Errorf("%w: %s", ErrStream, msg))
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		yield("", fmt.Errorf("%w: %w", ErrStream, err))
		return
	}
	yield("", fmt.Errorf("%w: stream ended before message_stop", ErrStream))
}

var _ Streamer = (*AnthropicStreamer)(nil)
