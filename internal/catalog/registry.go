package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry serves the current catalog and swaps it atomically on reload.
type Registry struct {
	loader  *Loader
	mu      sync.RWMutex
	current *Catalog
}

// NewRegistry creates a registry backed by loader.
func NewRegistry(loader *Loader) *Registry {
	return &Registry{loader: loader}
}

// NewStaticRegistry serves a fixed catalog; Reload is a no-op.
func NewStaticRegistry(c *Catalog) *Registry {
	return &Registry{current: c}
}

// Load loads the catalog for the first time.
func (r *Registry) Load(ctx context.Context) error {
	return r.Reload(ctx)
}

// Reload rebuilds the catalog from disk. On failure the previous catalog
// keeps being served.
func (r *Registry) Reload(ctx context.Context) error {
	if r.loader == nil {
		return nil
	}
	c, err := r.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	r.mu.Lock()
	r.current = c
	r.mu.Unlock()

	s := c.Stats()
	slog.Info("catalog loaded",
		"trails", s.Trails,
		"blocks", s.Blocks,
		"phases", s.Phases,
		"challenges", s.Challenges,
	)
	return nil
}

// Catalog returns the catalog currently served. It is nil before Load.
func (r *Registry) Catalog() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}
