package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mmynk/settlewise/internal/storage"
)

// DefaultChannelPrefix namespaces group channels in Redis.
const DefaultChannelPrefix = "settlewise:group:"

// RedisNotifier fans change events out to every instance subscribed to the
// same Redis server. Subscribers in this process are notified synchronously
// before the event goes to Redis, and the echo of their own events is
// skipped. Events from other instances run on a per-subscription goroutine.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	origin string
	local  *Hub
}

var _ Notifier = (*RedisNotifier)(nil)

// envelope is the wire form of a change on a Redis channel.
type envelope struct {
	Origin string `json:"origin"`
	storage.Change
}

// NewRedisNotifier connects to the Redis server at addr.
func NewRedisNotifier(addr, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		origin: uuid.New().String(),
		local:  NewHub(),
	}
}

// Ping checks the connection.
func (r *RedisNotifier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Channel returns the Redis channel name for a group.
func (r *RedisNotifier) Channel(groupID string) string {
	return r.prefix + groupID
}

// Publish notifies local subscribers, then sends change to the group's
// channel.
func (r *RedisNotifier) Publish(ctx context.Context, change storage.Change) error {
	if err := r.local.Publish(ctx, change); err != nil {
		return err
	}

	payload, err := encodeChange(r.origin, change)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.Channel(change.GroupID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Subscribe listens for changes to groupID from this process and from the
// group's Redis channel until the returned function is called.
func (r *RedisNotifier) Subscribe(groupID string, fn func(storage.Change)) (func(), error) {
	ctx := context.Background()
	ps := r.client.Subscribe(ctx, r.Channel(groupID))
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.Channel(groupID), err)
	}

	unsubscribe, err := r.local.Subscribe(groupID, fn)
	if err != nil {
		ps.Close()
		return nil, err
	}

	go func() {
		for msg := range ps.Channel() {
			origin, change, err := decodeChange(msg.Payload)
			if err != nil {
				slog.Warn("Dropping malformed change event", "channel", msg.Channel, "error", err)
				continue
			}
			if origin == r.origin {
				continue
			}
			fn(change)
		}
	}()

	return func() {
		unsubscribe()
		if err := ps.Close(); err != nil {
			slog.Debug("Closing subscription", "group_id", groupID, "error", err)
		}
	}, nil
}

// Close drops local subscriptions and closes the Redis client.
func (r *RedisNotifier) Close() error {
	r.local.Close()
	return r.client.Close()
}

func encodeChange(origin string, c storage.Change) (string, error) {
	data, err := json.Marshal(envelope{Origin: origin, Change: c})
	if err != nil {
		return "", fmt.Errorf("failed to encode change: %w", err)
	}
	return string(data), nil
}

func decodeChange(payload string) (string, storage.Change, error) {
	var e envelope
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return "", storage.Change{}, fmt.Errorf("failed to decode change: %w", err)
	}
	if e.GroupID == "" {
		return "", storage.Change{}, fmt.Errorf("failed to decode change: missing group_id")
	}
	return e.Origin, e.Change, nil
}
