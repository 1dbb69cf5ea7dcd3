package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/draftsmith/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite opens (and creates if needed) the journal database at dbPath.
func NewSQLite(dbPath string) (*SQLiteJournal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		transport TEXT NOT NULL,
		scope TEXT NOT NULL,
		mode TEXT NOT NULL,
		model TEXT NOT NULL,
		targets INTEGER NOT NULL DEFAULT 0,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		chunks INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		error TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_started ON exchanges(started_at);
	`
	if _, err := j.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (j *SQLiteJournal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// RecordExchange stores e, retrying with exponential backoff while the
// database is busy.
func (j *SQLiteJournal) RecordExchange(ctx context.Context, e *Exchange) error {
	return withBusyRetry(ctx, "record exchange", func() error {
		return j.recordOnce(ctx, e)
	})
}

func (j *SQLiteJournal) recordOnce(ctx context.Context, e *Exchange) error {
	j.writeMu.Lock()
	defer j.writeMu.Unlock()

	query := `
	INSERT INTO exchanges (
		request_id, client_id, transport, scope, mode, model, targets, prompt_tokens,
		chunks, bytes, outcome, error, started_at, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var errText interface{}
	if e.Error != "" {
		errText = e.Error
	}

	res, err := j.db.ExecContext(ctx, query,
		e.RequestID, e.ClientID, e.Transport, e.Scope, e.Mode, e.Model, e.Targets, e.PromptTokens,
		e.Chunks, e.Bytes, e.Outcome, errText, e.StartedAt.UnixMilli(), e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get exchange id: %w", err)
	}
	e.ID = id
	return nil
}

// RecentExchanges returns up to limit exchanges, newest first.
func (j *SQLiteJournal) RecentExchanges(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, request_id, client_id, transport, scope, mode, model, targets, prompt_tokens,
		       chunks, bytes, outcome, error, started_at, duration_ms
		FROM exchanges ORDER BY id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close exchange rows", "error", closeErr)
		}
	}()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var errText sql.NullString
		var startedAt int64
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.ClientID, &e.Transport, &e.Scope, &e.Mode, &e.Model, &e.Targets, &e.PromptTokens,
			&e.Chunks, &e.Bytes, &e.Outcome, &errText, &startedAt, &e.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		e.Error = errText.String
		e.StartedAt = time.UnixMilli(startedAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return out, nil
}

// PruneBefore deletes exchanges started before cutoff.
func (j *SQLiteJournal) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := withBusyRetry(ctx, "prune exchanges", func() error {
		j.writeMu.Lock()
		defer j.writeMu.Unlock()

		res, err := j.db.ExecContext(ctx, `DELETE FROM exchanges WHERE started_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return fmt.Errorf("prune exchanges: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// withBusyRetry runs op up to three times, backing off 50ms, 100ms while
// SQLite reports a lock conflict.
func withBusyRetry(ctx context.Context, what string, op func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", what, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

var _ Journal = (*SQLiteJournal)(nil)
