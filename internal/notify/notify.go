// Package notify delivers storage change events to subscribers, either within
// one process (Hub) or across instances through Redis pub/sub.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmynk/settlewise/internal/storage"
)

// Notifier publishes and fans out change events per group.
type Notifier interface {
	Publish(ctx context.Context, change storage.Change) error
	Subscribe(groupID string, fn func(storage.Change)) (func(), error)
	Close() error
}

// Hub is an in-process Notifier. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(storage.Change)
	order  map[string][]int
}

var _ Notifier = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs:  make(map[string]map[int]func(storage.Change)),
		order: make(map[string][]int),
	}
}

// Publish delivers change to every current subscriber of change.GroupID.
func (h *Hub) Publish(_ context.Context, change storage.Change) error {
	h.mu.RLock()
	handlers := make([]func(storage.Change), 0, len(h.order[change.GroupID]))
	for _, id := range h.order[change.GroupID] {
		if fn, ok := h.subs[change.GroupID][id]; ok {
			handlers = append(handlers, fn)
		}
	}
	h.mu.RUnlock()

	slog.Debug("Publishing change", "group_id", change.GroupID, "kind", change.Kind, "subscribers", len(handlers))
	for _, fn := range handlers {
		fn(change)
	}
	return nil
}

// Subscribe registers fn for groupID.
func (h *Hub) Subscribe(groupID string, fn func(storage.Change)) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.subs[groupID] == nil {
		h.subs[groupID] = make(map[int]func(storage.Change))
	}
	h.subs[groupID][id] = fn
	h.order[groupID] = append(h.order[groupID], id)

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(groupID, id) })
	}, nil
}

func (h *Hub) unsubscribe(groupID string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[groupID], id)
	ids := h.order[groupID]
	for i, v := range ids {
		if v == id {
			h.order[groupID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(h.subs[groupID]) == 0 {
		delete(h.subs, groupID)
		delete(h.order, groupID)
	}
}

// Close drops all subscriptions.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = make(map[string]map[int]func(storage.Change))
	h.order = make(map[string][]int)
	return nil
}
