package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Versions counts changes per resource. List responses carry the current
// version as their ETag.
type Versions interface {
	Version(ctx context.Context, resource string) (string, error)
	Bump(ctx context.Context, resource string) error
	Close() error
}

// NewVersions uses redis when cfg.Addr is set, process memory otherwise.
func NewVersions(cfg RedisConfig) Versions {
	if cfg.Addr == "" {
		return NewMemoryVersions()
	}
	return NewRedisVersions(redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
	}))
}

// MemoryVersions keeps counters in process. The boot time is part of
// every version so tags from a previous run never match.
type MemoryVersions struct {
	mu     sync.Mutex
	boot   int64
	counts map[string]int64
}

// NewMemoryVersions returns empty counters.
func NewMemoryVersions() *MemoryVersions {
	return &MemoryVersions{boot: time.Now().UnixNano(), counts: make(map[string]int64)}
}

func (v *MemoryVersions) Version(_ context.Context, resource string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return fmt.Sprintf("%x.%d", v.boot, v.counts[resource]), nil
}

func (v *MemoryVersions) Bump(_ context.Context, resource string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[resource]++
	return nil
}

func (v *MemoryVersions) Close() error { return nil }

// RedisVersions keeps counters in redis so several server processes agree
// on them.
type RedisVersions struct {
	rdb *redis.Client
}

// NewRedisVersions wraps a client.
func NewRedisVersions(rdb *redis.Client) *RedisVersions {
	return &RedisVersions{rdb: rdb}
}

func versionKey(resource string) string {
	return "tartil:" + resource + ":etag"
}

func (v *RedisVersions) Version(ctx context.Context, resource string) (string, error) {
	n, err := v.rdb.Get(ctx, versionKey(resource)).Int64()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("unable to read %s version: %w", resource, err)
	}
	return strconv.FormatInt(n, 10), nil
}

func (v *RedisVersions) Bump(ctx context.Context, resource string) error {
	if err := v.rdb.Incr(ctx, versionKey(resource)).Err(); err != nil {
		return fmt.Errorf("unable to bump %s version: %w", resource, err)
	}
	return nil
}

func (v *RedisVersions) Close() error { return v.rdb.Close() }

// etag formats a version as a strong entity tag.
func etag(resource, version string) string {
	return `"` + resource + "-" + version + `"`
}
