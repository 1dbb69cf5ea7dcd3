// Package modeltest provides in-memory model.Streamer implementations for
// tests.
package modeltest

import (
	"context"
	"iter"
	"sync"

	"github.com/ashureev/draftsmith/internal/model"
)

// Scripted yields a fixed list of fragments, optionally followed by an
// error. It records every generation it receives.
type Scripted struct {
	Fragments []string
	Err       error
	// Gate, when set, is received from before every fragment so tests can
	// pace the stream.
	Gate chan struct{}

	mu    sync.Mutex
	calls []model.Generation
}

// Stream implements model.Streamer.
func (s *Scripted) Stream(ctx context.Context, g model.Generation) iter.Seq2[string, error] {
	s.mu.Lock()
	s.calls = append(s.calls, g)
	s.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, f := range s.Fragments {
			if s.Gate != nil {
				select {
				case <-s.Gate:
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if s.Err != nil {
			yield("", s.Err)
		}
	}
}

// Calls returns the generations received so far.
func (s *Scripted) Calls() []model.Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Generation, len(s.calls))
	copy(out, s.calls)
	return out
}

// Panicking panics on first iteration.
type Panicking struct{}

// Stream implements model.Streamer.
func (Panicking) Stream(context.Context, model.Generation) iter.Seq2[string, error] {
	return func(func(string, error) bool) {
		panic("generator exploded")
	}
}

var (
	_ model.Streamer = (*Scripted)(nil)
	_ model.Streamer = Panicking{}
)
