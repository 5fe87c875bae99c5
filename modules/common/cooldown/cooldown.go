package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store - 키별 만료를 가진 쿨다운 저장소.
// Acquire는 키가 비어있으면 ttl 동안 점유하고 true를 반환한다.
// 이미 점유된 키는 false (쿨다운 중).
type Store interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisStore - Redis SET NX EX 기반 쿨다운
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore - Redis 쿨다운 저장소 생성
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: "cooldown:",
	}
}

func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, s.prefix+key, "1", ttl).Result()
}

// MemoryStore - 인메모리 쿨다운 (테스트/로컬용, 주입 가능한 clock)
type MemoryStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	Now     func() time.Time
}

// NewMemoryStore - 인메모리 쿨다운 저장소 생성
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expires: make(map[string]time.Time),
		Now:     time.Now,
	}
}

func (s *MemoryStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if until, ok := s.expires[key]; ok && now.Before(until) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}
