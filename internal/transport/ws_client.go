package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// CloseInvalidRequest is the WebSocket close code used for a request that
// failed validation before streaming began.
const CloseInvalidRequest websocket.StatusCode = 4400

const maxEventBytes = 1 << 20

// WSClient is the WebSocket initiator for GET /ws/edit. Each Stream call
// uses its own connection.
type WSClient struct {
	url    string
	logger *slog.Logger
}

// NewWSClient creates a client for the server at baseURL (http or https).
func NewWSClient(baseURL string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &WSClient{url: u + "/ws/edit", logger: logger}
}

// Stream has the same contract as Client.Stream. Cancelling ctx sends a
// cancel message and closes the connection.
func (c *WSClient) Stream(ctx context.Context, req domain.EditRequest, onChunk ChunkFunc) (string, error) {
	conn, resp, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return "", readStatusError(resp)
		}
		return "", fmt.Errorf("dial edit socket: %w", err)
	}
	defer func() {
		_ = conn.CloseNow()
	}()
	conn.SetReadLimit(maxEventBytes)

	if err := wsjson.Write(ctx, conn, req); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("send edit request: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-stop:
		case <-ctx.Done():
			wctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := wsjson.Write(wctx, conn, Event{Type: EventCancel}); err != nil {
				c.logger.Debug("failed to send cancel", "error", err)
			}
			_ = conn.Close(websocket.StatusNormalClosure, "cancelled")
		}
	}()

	// Reads use a context detached from ctx so the cancel message above
	// can be written before the connection goes away.
	readCtx, readCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer readCancel()

	var acc strings.Builder
	for {
		_, data, err := conn.Read(readCtx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			var ce websocket.CloseError
			if errors.As(err, &ce) && ce.Code == CloseInvalidRequest {
				return "", &StatusError{StatusCode: http.StatusBadRequest, Message: ce.Reason}
			}
			return "", fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("skipping malformed socket event", "error", err)
			continue
		}
		switch ev.Type {
		case EventChunk:
			acc.WriteString(ev.Data)
			if onChunk != nil {
				onChunk(ev.Data)
			}
		case EventDone:
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return acc.String(), nil
		case EventError:
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return "", &RemoteError{Message: ev.Data}
		default:
			c.logger.Debug("skipping unknown socket event", "type", ev.Type)
		}
	}
}
