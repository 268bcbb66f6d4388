package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/logging"
)

// Session binds an opaque bearer token to a user.
type Session struct {
	ID     string
	UserID uuid.UUID
}

// Store persists login sessions. The backend is chosen once at startup.
//
// Get returns (nil, nil) for an unknown token: absence is a routine
// outcome, not an error. Delete of an unknown token is logged, not failed.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, userID uuid.UUID) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory. They never expire and are
// lost on restart, which the server announces at startup.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess, nil
}

func (s *MemoryStore) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	sess := &Session{ID: NewToken(), UserID: userID}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		logging.Error(ctx, "session does not exist, so it cannot be deleted",
			zap.String("session", logging.RedactToken(id)))
		return nil
	}
	delete(s.sessions, id)
	return nil
}

// RedisStore keeps sessions under session:{token} with a TTL. The stored
// value is the user id's raw 16 bytes.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return fmt.Sprintf("session:%s", id) }

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	userID, err := uuid.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode session user id: %w", err)
	}
	return &Session{ID: id, UserID: userID}, nil
}

func (s *RedisStore) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	sess := &Session{ID: NewToken(), UserID: userID}
	if err := s.rdb.Set(ctx, sessionKey(sess.ID), userID[:], s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	logging.Info(ctx, "created session",
		zap.String("session", logging.RedactToken(sess.ID)),
		zap.Duration("ttl", s.ttl))
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	logging.Info(ctx, "deleted session", zap.String("session", logging.RedactToken(id)))
	return nil
}
