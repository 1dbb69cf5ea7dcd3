//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/draftsmith/internal/store"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestErrorWithCode(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithCode(w, http.StatusInternalServerError, "version content missing", CodeVersionCorrupt)

	var got map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "version content missing" || got["code"] != CodeVersionCorrupt {
		t.Errorf("Unexpected body: %v", got)
	}
}

type pingJournal struct {
	store.NopJournal
	err error
}

func (p pingJournal) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		ping   error
		status int
	}{
		{"healthy", nil, http.StatusOK},
		{"journal down", errors.New("disk I/O error"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, pingJournal{err: tt.ping}, 0, nil)
			r := chi.NewRouter()
			h.RegisterRoutes(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

type listJournal struct {
	store.NopJournal
	limit int
}

func (l *listJournal) RecentExchanges(_ context.Context, limit int) ([]store.Exchange, error) {
	l.limit = limit
	return []store.Exchange{{ID: 1, RequestID: "r1", Outcome: store.OutcomeDone, StartedAt: time.UnixMilli(0)}}, nil
}

func TestListExchanges(t *testing.T) {
	tests := []struct {
		query     string
		status    int
		wantLimit int
	}{
		{"", http.StatusOK, defaultExchangeLimit},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=10000", http.StatusOK, maxExchangeLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			j := &listJournal{}
			h := NewHandler(nil, j, 0, nil)
			r := chi.NewRouter()
			h.RegisterRoutes(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/exchanges"+tt.query, nil))
			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			if j.limit != tt.wantLimit {
				t.Errorf("Expected limit %d, got %d", tt.wantLimit, j.limit)
			}
			if tt.status != http.StatusOK {
				return
			}
			var body struct {
				Exchanges []store.Exchange `json:"exchanges"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if len(body.Exchanges) != 1 || body.Exchanges[0].RequestID != "r1" {
				t.Errorf("Unexpected exchanges: %+v", body.Exchanges)
			}
		})
	}
}
