package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/draftsmith/internal/domain"
)

const readBufferSize = 4096

// ChunkFunc receives each fragment as it arrives.
type ChunkFunc func(fragment string)

// Client is the SSE initiator for POST /api/edit.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// uses a client without timeout; streams are bounded by their context.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Stream issues req and relays fragments to onChunk until a terminal event.
// It returns the concatenated text on completion, a *RemoteError for an
// error event, a *StatusError for a synchronous rejection, or ctx.Err()
// once ctx is cancelled. No fragment is delivered after cancellation.
func (c *Client) Stream(ctx context.Context, req domain.EditRequest, onChunk ChunkFunc) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode edit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/edit", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build edit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("send edit request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close edit response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", readStatusError(resp)
	}

	return consume(ctx, resp.Body, NewDecoder(c.logger), onChunk)
}

// consume reads r until a terminal event, EOF, or cancellation.
func consume(ctx context.Context, r io.Reader, dec *Decoder, onChunk ChunkFunc) (string, error) {
	var acc strings.Builder
	buf := make([]byte, readBufferSize)

	apply := func(events []Event) (bool, error) {
		for _, ev := range events {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			switch ev.Type {
			case EventChunk:
				acc.WriteString(ev.Data)
				if onChunk != nil {
					onChunk(ev.Data)
				}
			case EventDone:
				return true, nil
			case EventError:
				return true, &RemoteError{Message: ev.Data}
			}
		}
		return false, nil
	}

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if finished, err := apply(dec.Feed(buf[:n])); finished {
				if err != nil {
					return "", err
				}
				return acc.String(), nil
			}
		}
		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(readErr, io.EOF) {
			return "", fmt.Errorf("read edit stream: %w", readErr)
		}
		if finished, err := apply(dec.Flush()); finished {
			if err != nil {
				return "", err
			}
			return acc.String(), nil
		}
		return "", ErrTruncated
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func readStatusError(resp *http.Response) *StatusError {
	se, _ := readStatusErrorBody(resp)
	return se
}

func readStatusErrorBody(resp *http.Response) (*StatusError, string) {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var eb errorBody
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != "" {
		msg = eb.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}, eb.Code
}
