// Package orchestrator owns the client side of an edit session: the turn
// log, the single in-flight exchange, and the hand-off of a finished edit.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/transport"
)

// Streamer carries one request to the responder. Both transport.Client and
// transport.WSClient satisfy it.
type Streamer interface {
	Stream(ctx context.Context, req domain.EditRequest, onChunk transport.ChunkFunc) (string, error)
}

// CompleteFunc receives the accumulated text of a finished edit-mode
// exchange.
type CompleteFunc func(result string)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFragmentFunc registers fn to observe every fragment that is applied
// to the turn log.
func WithFragmentFunc(fn func(fragment string)) Option {
	return func(o *Orchestrator) { o.onFragment = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs at most one exchange at a time. Sending a new request
// cancels its predecessor, and fragments from a superseded exchange are
// never applied.
type Orchestrator struct {
	streamer   Streamer
	onComplete CompleteFunc
	onFragment func(string)
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	// completeMu orders completion callbacks against Send.
	completeMu sync.Mutex
	// beforeComplete runs between the end of a successful stream and its
	// completion callback. Tests use it to interleave a Send.
	beforeComplete func()

	mu       sync.Mutex
	messages []domain.ChatMessage
	seq      uint64
	cancel   context.CancelFunc
	current  *Exchange
}

// New creates an Orchestrator. onComplete may be nil and must not call Send.
func New(streamer Streamer, onComplete CompleteFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		streamer:   streamer,
		onComplete: onComplete,
		logger:     slog.Default(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Exchange is the handle of one sent request.
type Exchange struct {
	seq    uint64
	done   chan struct{}
	result string
	err    error
}

// Done is closed when the exchange has finished in any way.
func (e *Exchange) Done() <-chan struct{} { return e.done }

// Wait blocks until the exchange finishes. A cancelled exchange returns
// context.Canceled.
func (e *Exchange) Wait() (string, error) {
	<-e.done
	return e.result, e.err
}

// Summary renders the user-turn text recorded for req.
func Summary(req domain.EditRequest) string {
	if len(req.Targets) == 0 {
		return req.Instruction
	}
	labels := make([]string, len(req.Targets))
	for i, t := range req.Targets {
		labels[i] = t.Label
	}
	return fmt.Sprintf("Editing %d target(s): %s", len(req.Targets), strings.Join(labels, ", "))
}

// Send cancels any in-flight exchange, records the user turn, and starts
// streaming req in the background. Chat requests carry the prior turns as
// history.
func (o *Orchestrator) Send(ctx context.Context, req domain.EditRequest) *Exchange {
	o.completeMu.Lock()
	defer o.completeMu.Unlock()

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.seq++
	ex := &Exchange{seq: o.seq, done: make(chan struct{})}

	if req.IsChat() {
		history := make([]domain.HistoryEntry, len(o.messages))
		for i, m := range o.messages {
			history[i] = domain.HistoryEntry{Role: m.Role, Content: m.Content}
		}
		req.History = history
	}
	o.messages = append(o.messages, domain.ChatMessage{
		ID:        o.newID(),
		Role:      domain.RoleUser,
		Content:   Summary(req),
		Timestamp: o.now(),
	})

	sctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.current = ex
	assistantID := o.newID()
	o.mu.Unlock()

	go o.run(sctx, cancel, ex, assistantID, req)
	return ex
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, ex *Exchange, assistantID string, req domain.EditRequest) {
	defer close(ex.done)
	defer cancel()

	var acc strings.Builder
	onChunk := func(fragment string) {
		o.mu.Lock()
		if !o.liveLocked(ctx, ex) {
			o.mu.Unlock()
			return
		}
		acc.WriteString(fragment)
		o.upsertLocked(assistantID, acc.String())
		o.mu.Unlock()

		if o.onFragment != nil {
			o.onFragment(fragment)
		}
	}

	result, err := o.streamer.Stream(ctx, req, onChunk)

	o.mu.Lock()
	live := o.liveLocked(ctx, ex)
	if o.current == ex {
		o.current = nil
		o.cancel = nil
	}
	if !live || errors.Is(err, context.Canceled) {
		o.mu.Unlock()
		ex.err = context.Canceled
		o.logger.Debug("exchange cancelled", "seq", ex.seq)
		return
	}
	if err != nil {
		o.messages = append(o.messages, domain.ChatMessage{
			ID:        o.newID(),
			Role:      domain.RoleAssistant,
			Content:   "Error: " + err.Error(),
			Timestamp: o.now(),
		})
		o.mu.Unlock()
		ex.err = err
		o.logger.Warn("exchange failed", "seq", ex.seq, "error", err)
		return
	}
	o.mu.Unlock()

	if o.beforeComplete != nil {
		o.beforeComplete()
	}
	if req.IsChat() || o.onComplete == nil {
		ex.result = result
		return
	}

	o.completeMu.Lock()
	defer o.completeMu.Unlock()
	o.mu.Lock()
	superseded := o.seq != ex.seq
	o.mu.Unlock()
	if superseded {
		ex.err = context.Canceled
		o.logger.Debug("exchange superseded before completion", "seq", ex.seq)
		return
	}
	ex.result = result
	o.onComplete(result)
}

// liveLocked reports whether ex is still the current, uncancelled exchange.
func (o *Orchestrator) liveLocked(ctx context.Context, ex *Exchange) bool {
	return ctx.Err() == nil && o.seq == ex.seq
}

func (o *Orchestrator) upsertLocked(id, content string) {
	for i := len(o.messages) - 1; i >= 0; i-- {
		if o.messages[i].ID == id {
			o.messages[i].Content = content
			return
		}
	}
	o.messages = append(o.messages, domain.ChatMessage{
		ID:        id,
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: o.now(),
	})
}

// Cancel stops the in-flight exchange, if any. No message is recorded.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Clear discards the turn log. The in-flight exchange, if any, keeps
// streaming.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = nil
}

// Messages returns a copy of the turn log.
func (o *Orchestrator) Messages() []domain.ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.ChatMessage, len(o.messages))
	copy(out, o.messages)
	return out
}

// Streaming reports whether an exchange is in flight.
func (o *Orchestrator) Streaming() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}
