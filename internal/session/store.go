package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Store persists session records. Load returns (nil, nil) for an unknown
// session: absence is not an error. Implementations do not serialize access;
// the dialogue engine holds a per-session lock around read-modify-write.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisStore keeps records in Redis as JSON with a rolling TTL, so abandoned
// sessions expire on their own.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates a Redis-backed store. A non-positive ttl defaults to
// 24 hours.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if tracer == nil {
		tracer = otel.Tracer("triagebot.internal.session")
	}
	return &RedisStore{redis: client, ttl: ttl, tracer: tracer}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Load fetches a record, returning (nil, nil) when the session is unknown.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "session.load")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode record: %w", err)
	}
	return &record, nil
}

// Save writes the record and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, record *Record) error {
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	data, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal record: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(record.SessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist record: %w", err)
	}
	return nil
}

// Delete removes the record. Deleting an unknown session is a no-op.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete record: %w", err)
	}
	return nil
}
