package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Cache layers, used as metric label values.
const (
	LayerMemory = "memory"
	LayerRedis  = "redis"
)

// Config holds cache manager configuration.
type Config struct {
	// MemorySize is the number of entries kept in the in-process LRU
	MemorySize int

	// TTL applies to responses without a usable Expires header
	TTL time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemorySize: 256,
		TTL:        DefaultTTL,
	}
}

// Manager is a two-layer response cache: an in-process LRU in front of an
// optional Redis backend shared between processes.
type Manager struct {
	memory *lru.Cache[string, *Entry]
	redis  *redis.Client
	config Config
}

// NewManager creates a cache manager. redisClient may be nil, in which case
// only the in-process layer is used.
func NewManager(redisClient *redis.Client, cfg Config) (*Manager, error) {
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultConfig().MemorySize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	memory, err := lru.New[string, *Entry](cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}

	return &Manager{
		memory: memory,
		redis:  redisClient,
		config: cfg,
	}, nil
}

// TTL returns the fallback TTL for entries built by this manager.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Get retrieves an entry, checking memory first and then Redis.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	if entry, ok := m.memory.Get(cacheKey); ok {
		if !entry.IsExpired() {
			CacheHits.WithLabelValues(LayerMemory).Inc()
			return entry, nil
		}
		m.memory.Remove(cacheKey)
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(LayerRedis).Inc()
	m.memory.Add(cacheKey, &entry)

	return &entry, nil
}

// Set stores an entry in both layers. Expired entries are not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	cacheKey := key.String()
	m.memory.Add(cacheKey, entry)

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes an entry from both layers.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	cacheKey := key.String()
	m.memory.Remove(cacheKey)

	if m.redis == nil {
		return nil
	}

	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Purge empties the in-process layer. Redis entries expire on their own.
func (m *Manager) Purge() {
	m.memory.Purge()
}

// Len returns the number of entries in the in-process layer.
func (m *Manager) Len() int {
	return m.memory.Len()
}
