// Package redisstore keeps staff web sessions in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kozaktomas/checkpoint/internal/web/middleware"
)

const keyPrefix = "checkpoint:session:"

// Connect parses url, dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("REDIS_URL is required for the redis session store")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// SessionRepository stores sessions as JSON values whose TTL matches the session expiry.
type SessionRepository struct {
	client *redis.Client
}

// NewSessionRepository creates a Redis-backed session repository
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// storedSession mirrors middleware.Session; Session's own JSON form hides fields.
type storedSession struct {
	ID        string    `json:"id"`
	StaffID   int64     `json:"staff_id"`
	Username  string    `json:"username"`
	Section   string    `json:"section"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Save stores a session until it expires
func (r *SessionRepository) Save(ctx context.Context, s *middleware.Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(storedSession{
		ID:        s.ID,
		StaffID:   s.StaffID,
		Username:  s.Username,
		Section:   s.Section,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+s.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get returns the session, nil if missing or expired
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*middleware.Session, error) {
	data, err := r.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s storedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if !time.Now().Before(s.ExpiresAt) {
		return nil, nil
	}
	return &middleware.Session{
		ID:        s.ID,
		StaffID:   s.StaffID,
		Username:  s.Username,
		Section:   s.Section,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}, nil
}

// Delete removes a session
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op; Redis expires keys on its own.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
