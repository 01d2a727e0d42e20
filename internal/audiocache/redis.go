package audiocache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harya06/iqro-gesture/pkg/provider/tts"
)

// audioKeyPrefix namespaces cache entries within the Redis keyspace.
const audioKeyPrefix = "iqro:audio:"

// Compile-time interface assertion.
var _ Store = (*RedisStore)(nil)

// RedisStore is a [Store] backed by a Redis server, for deployments running
// more than one replica: every replica shares one synthesis result per label.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// redisEntry is the JSON wrapper persisted per label, so the format tag
// travels with the bytes.
type redisEntry struct {
	Format string `json:"format"`
	Data   []byte `json:"data"`
}

// NewRedisStore creates a RedisStore over client. ttl controls entry expiry;
// zero keeps entries until [RedisStore.Clear].
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (tts.Audio, bool, error) {
	val, err := s.client.Get(ctx, audioKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return tts.Audio{}, false, nil
	}
	if err != nil {
		return tts.Audio{}, false, fmt.Errorf("audiocache: redis get %q: %w", key, err)
	}

	var entry redisEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return tts.Audio{}, false, fmt.Errorf("audiocache: decode redis entry %q: %w", key, err)
	}
	return tts.Audio{Data: entry.Data, Format: entry.Format}, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, audio tts.Audio) error {
	val, err := json.Marshal(redisEntry{Format: audio.Format, Data: audio.Data})
	if err != nil {
		return fmt.Errorf("audiocache: encode redis entry %q: %w", key, err)
	}
	if err := s.client.Set(ctx, audioKeyPrefix+key, val, s.ttl).Err(); err != nil {
		return fmt.Errorf("audiocache: redis set %q: %w", key, err)
	}
	return nil
}

// Clear implements Store. Entries are discovered with SCAN rather than KEYS
// so a large shared Redis is not blocked.
func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	var removed int
	iter := s.client.Scan(ctx, 0, audioKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("audiocache: redis del %q: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("audiocache: redis scan: %w", err)
	}
	return removed, nil
}
