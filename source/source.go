// Package source provides document sources for the scan cycle: a Google
// Drive folder poller and a local inbox directory. Sources produce candidate
// files identified by opaque IDs; the scan cycle filters those against the
// idempotency tracker.
package source

import (
	"context"
	"fmt"
	"sync"
)

// File is a candidate document discovered by a source.
type File struct {
	// ID is the opaque unique identifier for idempotency tracking.
	ID string

	// Name is the display filename, used for extension dispatch and alerts.
	Name string

	// MimeType is the source-reported content type, when known.
	MimeType string
}

// Source lists candidate files and downloads their content.
type Source interface {
	// Name identifies the source in logs and summaries.
	Name() string

	// List returns the current candidate files in source order.
	List(ctx context.Context) ([]File, error)

	// Download fetches the content of a listed file.
	Download(ctx context.Context, id string) ([]byte, error)
}

// Multi merges several sources into one. Listing preserves per-source order;
// downloads are routed to the source that listed the file.
type Multi struct {
	sources []Source

	mu    sync.Mutex
	owner map[string]Source
}

// NewMulti combines the given sources.
func NewMulti(sources ...Source) *Multi {
	return &Multi{
		sources: sources,
		owner:   make(map[string]Source),
	}
}

// Name identifies the merged source.
func (m *Multi) Name() string { return "multi" }

// List concatenates the listings of all sources. A failing source fails the
// whole listing; the scan cycle's retry policy wraps this call.
func (m *Multi) List(ctx context.Context) ([]File, error) {
	var all []File
	owner := make(map[string]Source)

	for _, s := range m.sources {
		files, err := s.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.Name(), err)
		}
		for _, f := range files {
			owner[f.ID] = s
		}
		all = append(all, files...)
	}

	m.mu.Lock()
	m.owner = owner
	m.mu.Unlock()

	return all, nil
}

// Download routes to the owning source from the last List.
func (m *Multi) Download(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	s, ok := m.owner[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown file ID: %s", id)
	}
	return s.Download(ctx, id)
}
