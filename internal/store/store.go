// Package store persists the journal of edit exchanges served by the
// streaming transport.
package store

import (
	"context"
	"time"
)

// Outcome values recorded for an exchange.
const (
	OutcomeDone      = "done"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Exchange is one served edit or chat stream.
type Exchange struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	ClientID     string    `json:"client_id"`
	Transport    string    `json:"transport"`
	Scope        string    `json:"scope"`
	Mode         string    `json:"mode"`
	Model        string    `json:"model"`
	Targets      int       `json:"targets"`
	PromptTokens int       `json:"prompt_tokens"`
	Chunks       int       `json:"chunks"`
	Bytes        int       `json:"bytes"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
}

// Journal records exchanges for operators.
type Journal interface {
	// RecordExchange stores e and assigns its ID.
	RecordExchange(ctx context.Context, e *Exchange) error

	// RecentExchanges returns up to limit exchanges, newest first.
	RecentExchanges(ctx context.Context, limit int) ([]Exchange, error)

	// PruneBefore deletes exchanges started before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// NopJournal discards every record.
type NopJournal struct{}

func (NopJournal) RecordExchange(context.Context, *Exchange) error { return nil }

func (NopJournal) RecentExchanges(context.Context, int) ([]Exchange, error) { return nil, nil }

func (NopJournal) PruneBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (NopJournal) Ping(context.Context) error { return nil }

func (NopJournal) Close() error { return nil }
