package edit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/draftsmith/internal/config"
	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/identity"
	"github.com/ashureev/draftsmith/internal/store"
	"github.com/ashureev/draftsmith/internal/transport"
)

const (
	defaultMaxRequestBodySize = 4 << 20
	defaultKeepaliveInterval  = 15 * time.Second
	wsRequestTimeout          = 30 * time.Second
	journalTimeout            = 5 * time.Second
	maxCloseReason            = 120
)

// Handler serves POST /api/edit (SSE) and GET /ws/edit (WebSocket).
type Handler struct {
	service        *Service
	journal        store.Journal
	limiter        *RateLimiter
	maxBodySize    int64
	keepalive      time.Duration
	originPatterns []string
	logger         *slog.Logger
}

// NewHandler creates an edit handler. journal and cfg may be nil.
func NewHandler(service *Service, journal store.Journal, cfg *config.Config, logger *slog.Logger) *Handler {
	if journal == nil {
		journal = store.NopJournal{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit, window := 20, time.Minute
	maxBody := int64(defaultMaxRequestBodySize)
	keepalive := defaultKeepaliveInterval
	var origins []string
	if cfg != nil {
		limit, window = cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration
		maxBody = cfg.SSE.MaxRequestBodySize
		keepalive = cfg.SSE.KeepaliveInterval
		origins = cfg.AllowedOrigins
		if cfg.DevMode {
			origins = []string{"*"}
		}
	}

	return &Handler{
		service:        service,
		journal:        journal,
		limiter:        NewRateLimiter(limit, window),
		maxBodySize:    maxBody,
		keepalive:      keepalive,
		originPatterns: originPatterns(origins),
		logger:         logger,
	}
}

// RegisterRoutes registers the edit routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/edit", h.HandleEdit)
	r.Get("/ws/edit", h.HandleWS)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.limiter.Close()
}

// originPatterns converts allowed origins to the host patterns accepted by
// the WebSocket handshake.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func clientKey(r *http.Request) string {
	if ip := identity.RemoteIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return identity.IPFromRequest(r)
}

// HandleEdit handles POST /api/edit. Validation failures are answered with
// a 400 JSON body before any event is written.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientKey(r)) {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req domain.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := h.service.Prepare(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var writeMu sync.Mutex
	emit := func(ev transport.Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := transport.WriteSSE(w, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.keepaliveLoop(ctx, func() error {
			writeMu.Lock()
			defer writeMu.Unlock()
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})
	}()

	ex := h.begin(r, "sse", req, plan)
	res := h.relay(ctx, plan, emit)
	cancel()
	wg.Wait()
	h.finish(r.Context(), ex, res)
}

func (h *Handler) keepaliveLoop(ctx context.Context, ping func() error) {
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ping(); err != nil {
				h.logger.Debug("failed to write SSE keepalive", "error", err)
				return
			}
		}
	}
}

// HandleWS handles GET /ws/edit. The first client message is the request;
// a later {"type":"cancel"} message, or closing the socket, cancels it.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientKey(r)) {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("failed to accept edit socket", "error", err)
		return
	}
	defer func() {
		_ = conn.CloseNow()
	}()
	conn.SetReadLimit(h.maxBodySize)

	readCtx, readCancel := context.WithTimeout(r.Context(), wsRequestTimeout)
	var req domain.EditRequest
	err = wsjson.Read(readCtx, conn, &req)
	readCancel()
	if err != nil {
		h.logger.Debug("failed to read edit request from socket", "error", err)
		_ = conn.Close(transport.CloseInvalidRequest, "invalid request body")
		return
	}

	plan, err := h.service.Prepare(req)
	if err != nil {
		_ = conn.Close(transport.CloseInvalidRequest, truncateReason(err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var ev transport.Event
			if json.Unmarshal(data, &ev) == nil && ev.Type == transport.EventCancel {
				h.logger.Debug("edit cancelled by client", "request_id", chiMiddleware.GetReqID(r.Context()))
				return
			}
		}
	}()

	emit := func(ev transport.Event) error {
		return wsjson.Write(ctx, conn, ev)
	}

	ex := h.begin(r, "ws", req, plan)
	res := h.relay(ctx, plan, emit)
	if res.outcome == store.OutcomeCancelled {
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "cancelled")
	} else {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	cancel()
	<-readerDone
	h.finish(r.Context(), ex, res)
}

func truncateReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	return s[:maxCloseReason]
}

type relayResult struct {
	outcome string
	chunks  int
	bytes   int
	err     error
}

// relay streams plan through emit. Exactly one terminal event is emitted
// unless the exchange is cancelled, in which case none is.
func (h *Handler) relay(ctx context.Context, plan Plan, emit func(transport.Event) error) (res relayResult) {
	terminal := false
	fail := func(err error) {
		res.outcome = store.OutcomeError
		res.err = err
		if terminal {
			return
		}
		terminal = true
		if writeErr := emit(transport.Failure(err.Error())); writeErr != nil {
			h.logger.Debug("failed to write error event", "error", writeErr)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("edit stream panicked", "panic", p)
			if ctx.Err() != nil {
				res.outcome = store.OutcomeCancelled
				return
			}
			fail(fmt.Errorf("internal error: %v", p))
		}
	}()

	for frag, err := range h.service.Stream(ctx, plan) {
		if ctx.Err() != nil {
			res.outcome = store.OutcomeCancelled
			return res
		}
		if err != nil {
			fail(err)
			return res
		}
		if frag == "" {
			continue
		}
		if err := emit(transport.Chunk(frag)); err != nil {
			h.logger.Debug("edit client went away", "error", err)
			res.outcome = store.OutcomeCancelled
			return res
		}
		res.chunks++
		res.bytes += len(frag)
	}

	if ctx.Err() != nil {
		res.outcome = store.OutcomeCancelled
		return res
	}
	terminal = true
	if err := emit(transport.Done()); err != nil {
		h.logger.Debug("failed to write done event", "error", err)
	}
	res.outcome = store.OutcomeDone
	return res
}

func (h *Handler) begin(r *http.Request, via string, req domain.EditRequest, plan Plan) *store.Exchange {
	mode := domain.ModeEdit
	if req.IsChat() {
		mode = domain.ModeChat
	}
	ex := &store.Exchange{
		RequestID:    chiMiddleware.GetReqID(r.Context()),
		ClientID:     identity.ClientIDFromContext(r.Context()),
		Transport:    via,
		Scope:        string(req.EditLevel),
		Mode:         string(mode),
		Model:        string(plan.Selector),
		Targets:      len(req.Targets),
		PromptTokens: plan.PromptTokens,
		StartedAt:    time.Now(),
	}
	h.logger.Info("edit stream started",
		"request_id", ex.RequestID,
		"transport", via,
		"scope", ex.Scope,
		"mode", ex.Mode,
		"model", ex.Model,
		"targets", ex.Targets,
		"prompt_tokens", ex.PromptTokens,
	)
	return ex
}

func (h *Handler) finish(parent context.Context, ex *store.Exchange, res relayResult) {
	ex.Outcome = res.outcome
	ex.Chunks = res.chunks
	ex.Bytes = res.bytes
	ex.DurationMs = time.Since(ex.StartedAt).Milliseconds()
	if res.err != nil {
		ex.Error = res.err.Error()
	}

	attrs := []any{
		"request_id", ex.RequestID,
		"outcome", ex.Outcome,
		"chunks", ex.Chunks,
		"bytes", ex.Bytes,
		"duration_ms", ex.DurationMs,
	}
	if res.err != nil {
		h.logger.Warn("edit stream failed", append(attrs, "error", res.err)...)
	} else {
		h.logger.Info("edit stream finished", attrs...)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), journalTimeout)
	defer cancel()
	if err := h.journal.RecordExchange(ctx, ex); err != nil {
		h.logger.Warn("failed to record exchange", "request_id", ex.RequestID, "error", err)
	}
}
