// Package model adapts generative-text providers to a single token-stream
// interface.
package model

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// ID is the user-facing model selector.
type ID string

const (
	Sonnet ID = "sonnet"
	Opus   ID = "opus"
	Haiku  ID = "haiku"

	// Default is used when a request names no model.
	Default = Sonnet
)

var (
	// ErrUnknownModel is returned for selectors outside the fixed set.
	ErrUnknownModel = errors.New("unknown model")
	// ErrRequestFailed is returned when a provider rejects a request.
	ErrRequestFailed = errors.New("model request failed")
	// ErrStream is returned when a provider reports an error mid-stream.
	ErrStream = errors.New("model stream error")
)

// IDs lists the accepted selectors.
func IDs() []ID {
	return []ID{Sonnet, Opus, Haiku}
}

// ParseID validates a selector. The empty string selects Default.
func ParseID(s string) (ID, error) {
	if s == "" {
		return Default, nil
	}
	for _, id := range IDs() {
		if ID(s) == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// Generation is a single prompt submitted to a provider.
type Generation struct {
	Prompt string
	System string
	// Model is the provider-specific model name.
	Model string
}

// Streamer produces generated text incrementally. Fragments are yielded in
// production order; a non-nil error is yielded at most once and ends the
// sequence. Cancelling ctx stops the stream.
type Streamer interface {
	Stream(ctx context.Context, g Generation) iter.Seq2[string, error]
}

// Catalog maps selectors to provider model names.
type Catalog map[ID]string

// Resolve returns the provider model name for selector s.
func (c Catalog) Resolve(s string) (string, error) {
	id, err := ParseID(s)
	if err != nil {
		return "", err
	}
	name, ok := c[id]
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q has no provider mapping", ErrUnknownModel, id)
	}
	return name, nil
}

// DefaultCatalog returns the built-in model names for a provider.
func DefaultCatalog(provider string) Catalog {
	switch provider {
	case ProviderGemini:
		return Catalog{
			Sonnet: "gemini-2.5-flash",
			Opus:   "gemini-2.5-pro",
			Haiku:  "gemini-2.5-flash-lite",
		}
	case ProviderGRPC:
		return Catalog{Sonnet: string(Sonnet), Opus: string(Opus), Haiku: string(Haiku)}
	default:
		return Catalog{
			Sonnet: "claude-sonnet-4-5-20250929",
			Opus:   "claude-opus-4-1-20250805",
			Haiku:  "claude-haiku-4-5-20251001",
		}
	}
}

// WithOverrides returns a copy of c with the named selectors remapped.
// Keys outside the fixed selector set are rejected.
func (c Catalog) WithOverrides(overrides map[string]string) (Catalog, error) {
	out := make(Catalog, len(c)+len(overrides))
	for id, name := range c {
		out[id] = name
	}
	for sel, name := range overrides {
		if sel == "" {
			return nil, fmt.Errorf("%w: empty selector", ErrUnknownModel)
		}
		id, err := ParseID(sel)
		if err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, nil
}

// CatalogFor returns the catalog a process using provider should apply.
// The grpc provider forwards selectors untouched because the generator
// service owns the mapping, so overrides are ignored for it.
func CatalogFor(provider string, overrides map[string]string) (Catalog, error) {
	c := DefaultCatalog(provider)
	if provider == ProviderGRPC {
		return c, nil
	}
	return c.WithOverrides(overrides)
}

type catalogStreamer struct {
	next    Streamer
	catalog Catalog
}

// WithCatalog returns a Streamer that maps Generation.Model through c
// before delegating to next. An unresolvable selector yields
// ErrUnknownModel as the only element.
func WithCatalog(next Streamer, c Catalog) Streamer {
	return &catalogStreamer{next: next, catalog: c}
}

func (s *catalogStreamer) Stream(ctx context.Context, g Generation) iter.Seq2[string, error] {
	name, err := s.catalog.Resolve(g.Model)
	if err != nil {
		return func(yield func(string, error) bool) {
			yield("", err)
		}
	}
	g.Model = name
	return s.next.Stream(ctx, g)
}
