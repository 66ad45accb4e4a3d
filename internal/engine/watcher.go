package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mmynk/settlewise/internal/storage"
)

// Watcher keeps the View of one group current. Every store change for the
// group triggers a full recomputation that replaces the previous View; there
// is no incremental state.
type Watcher struct {
	engine   *Engine
	groupID  string
	onUpdate func(*View)

	ctx    context.Context
	stop   context.CancelFunc
	cancel func()

	mu      sync.Mutex // serializes recomputations
	current atomic.Pointer[View]
}

// Watch computes the group's View and keeps it current until Close. If
// onUpdate is not nil it receives every new View, including the first.
// onUpdate runs while the watcher is recomputing and must not write to the
// store.
func (e *Engine) Watch(ctx context.Context, groupID string, onUpdate func(*View)) (*Watcher, error) {
	wctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	w := &Watcher{
		engine:   e,
		groupID:  groupID,
		onUpdate: onUpdate,
		ctx:      wctx,
		stop:     stop,
	}

	// Subscribe first so no change between the initial read and the
	// subscription is missed.
	cancel, err := e.store.Subscribe(groupID, w.handle)
	if err != nil {
		stop()
		return nil, err
	}
	w.cancel = cancel

	if err := w.refresh(ctx, "watch_init"); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Current returns the latest computed View. It never returns nil after Watch
// succeeded.
func (w *Watcher) Current() *View {
	return w.current.Load()
}

// Refresh recomputes the View now.
func (w *Watcher) Refresh(ctx context.Context) error {
	return w.refresh(ctx, "watch_refresh")
}

// Close stops watching. The last View stays available from Current.
func (w *Watcher) Close() {
	w.stop()
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watcher) handle(change storage.Change) {
	if w.ctx.Err() != nil {
		return
	}
	slog.Debug("Group changed, recomputing", "group_id", w.groupID, "kind", change.Kind, "id", change.ID)
	if err := w.refresh(w.ctx, "watch"); err != nil {
		// Keep serving the previous view; the next change retries.
		slog.Error("Failed to recompute settlements", "group_id", w.groupID, "error", err)
	}
}

func (w *Watcher) refresh(ctx context.Context, trigger string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap, err := w.engine.load(ctx, w.groupID, trigger)
	if err != nil {
		return err
	}
	view := snap.view()
	w.current.Store(view)

	if w.onUpdate != nil {
		w.onUpdate(view)
	}
	return nil
}
