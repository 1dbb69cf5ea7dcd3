package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/store"
	"github.com/ashureev/draftsmith/internal/version"
)

// VersionsClient talks to the version history and journal endpoints.
type VersionsClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewVersionsClient creates a client for the server at baseURL.
func NewVersionsClient(baseURL string, logger *slog.Logger) *VersionsClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionsClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type saveResponse struct {
	domain.VersionMeta
	Duplicate bool `json:"duplicate"`
}

// List returns all version metadata, newest first.
func (c *VersionsClient) List(ctx context.Context) ([]domain.VersionMeta, error) {
	var out []domain.VersionMeta
	if err := c.do(ctx, http.MethodGet, "/api/versions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save stores content. It returns nil metadata when the server reports
// the content as a duplicate of the latest version.
func (c *VersionsClient) Save(ctx context.Context, content string) (*domain.VersionMeta, error) {
	var out saveResponse
	if err := c.do(ctx, http.MethodPost, "/api/versions", map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	if out.Duplicate {
		return nil, nil
	}
	return &out.VersionMeta, nil
}

// Content fetches a version's body. It returns version.ErrNotFound or
// version.ErrCorrupt to match the local store.
func (c *VersionsClient) Content(ctx context.Context, id string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	err := c.do(ctx, http.MethodGet, "/api/versions/"+url.PathEscape(id), nil, &out)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// Clear deletes every version.
func (c *VersionsClient) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/versions", nil, nil)
}

// Exchanges returns up to limit recent journal entries.
func (c *VersionsClient) Exchanges(ctx context.Context, limit int) ([]store.Exchange, error) {
	var out struct {
		Exchanges []store.Exchange `json:"exchanges"`
	}
	path := "/api/exchanges"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Exchanges, nil
}

func (c *VersionsClient) do(ctx context.Context, method, path string, in, out any) error {
	var raw []byte
	if in != nil {
		var err error
		if raw, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	body := bytes.NewReader(raw)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode >= 300 {
		return mapVersionError(readStatusErrorBody(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapVersionError(se *StatusError, code string) error {
	switch {
	case code == "version_corrupt":
		return version.ErrCorrupt
	case se.StatusCode == http.StatusNotFound:
		return version.ErrNotFound
	default:
		return se
	}
}
