package engine

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxWatchers bounds how many groups a Registry watches at once.
const DefaultMaxWatchers = 1024

// Registry lazily starts one Watcher per group and serves views from them,
// so reads do not recompute unless the group changed. Once the cap is
// reached the least recently viewed group stops being watched.
type Registry struct {
	engine *Engine

	mu       sync.Mutex
	watchers *lru.Cache[string, *Watcher]
	closed   bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	maxWatchers int
}

// WithMaxWatchers caps the number of watched groups. Values below one mean
// one.
func WithMaxWatchers(n int) RegistryOption {
	return func(c *registryConfig) {
		c.maxWatchers = max(n, 1)
	}
}

// NewRegistry creates an empty Registry over e.
func NewRegistry(e *Engine, opts ...RegistryOption) *Registry {
	cfg := registryConfig{maxWatchers: DefaultMaxWatchers}
	for _, opt := range opts {
		opt(&cfg)
	}

	watchers, err := lru.NewWithEvict(cfg.maxWatchers, func(groupID string, w *Watcher) {
		slog.Debug("Stopped watching group", "group_id", groupID)
		w.Close()
	})
	if err != nil {
		// Only a non-positive size fails, and the options exclude it.
		panic(err)
	}
	return &Registry{engine: e, watchers: watchers}
}

// View returns the current View of groupID, starting a Watcher on first use.
// After Close it computes views directly.
func (r *Registry) View(ctx context.Context, groupID string) (*View, error) {
	r.mu.Lock()
	if w, ok := r.watchers.Get(groupID); ok {
		r.mu.Unlock()
		return w.Current(), nil
	}
	if r.closed {
		r.mu.Unlock()
		return r.engine.Settlements(ctx, groupID)
	}
	r.mu.Unlock()

	// Watch outside the lock; its first recomputation reads the store.
	w, err := r.engine.Watch(ctx, groupID, nil)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.watchers.Get(groupID); ok {
		w.Close()
		return existing.Current(), nil
	}
	if r.closed {
		w.Close()
		return w.Current(), nil
	}
	r.watchers.Add(groupID, w)
	return w.Current(), nil
}

// Len returns the number of watched groups.
func (r *Registry) Len() int {
	return r.watchers.Len()
}

// Close stops every Watcher.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers.Purge()
	r.closed = true
}
