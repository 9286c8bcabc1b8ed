package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveSession is the cached view of the session currently occupying a point.
type ActiveSession struct {
	SessionID string    `json:"session_id"`
	PointID   string    `json:"point_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// Store manages the active session cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(pointID string) string {
	return fmt.Sprintf("sessions:active:point:%s", pointID)
}

// Save caches the session under its point.
func (s *Store) Save(ctx context.Context, session ActiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.PointID), data, s.ttl).Err()
}

// Get returns the cached session of a point. The bool is false on a cache miss.
func (s *Store) Get(ctx context.Context, pointID string) (*ActiveSession, bool, error) {
	result, err := s.client.Get(ctx, s.key(pointID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

// Delete drops the cached session of a point.
func (s *Store) Delete(ctx context.Context, pointID string) error {
	err := s.client.Del(ctx, s.key(pointID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
