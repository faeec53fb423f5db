package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shootingwala/inbox/internal/engine"
)

const snapshotTTL = 10 * time.Minute

// RedisStore publishes engine events and caches the latest snapshot so other
// processes can follow an actor's inbox.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// eventsChannel returns the pub/sub channel for an actor's events.
func eventsChannel(actorID string) string {
	return fmt.Sprintf("inbox:%s:events", actorID)
}

// snapshotKey returns the key holding an actor's latest snapshot.
func snapshotKey(actorID string) string {
	return fmt.Sprintf("inbox:%s:snapshot", actorID)
}

// PublishEvent publishes an engine event on the actor's channel.
func (s *RedisStore) PublishEvent(ctx context.Context, actorID string, ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, eventsChannel(actorID), data).Err()
}

// SaveSnapshot caches the actor's latest engine snapshot.
func (s *RedisStore) SaveSnapshot(ctx context.Context, actorID string, snap engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, snapshotKey(actorID), data, snapshotTTL).Err()
}

// LoadSnapshot returns the cached snapshot, or nil if none is cached.
func (s *RedisStore) LoadSnapshot(ctx context.Context, actorID string) (*engine.Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SubscribeEvents calls fn for every event published for actorID until ctx is
// done. Malformed payloads are skipped.
func (s *RedisStore) SubscribeEvents(ctx context.Context, actorID string, fn func(engine.Event)) error {
	pubsub := s.client.Subscribe(ctx, eventsChannel(actorID))
	defer pubsub.Close()

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev engine.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			fn(ev)
		}
	}
}
