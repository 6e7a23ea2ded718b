// Package health answers "is processor P healthy and how fast?"
// without probing more than once per TTL window, coordinating refreshes
// across gateway instances through the shared store.
package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"go-gateway/internal/config"
	"go-gateway/internal/types"

	"github.com/bytedance/sonic"
)

const (
	cacheKeyPrefix = "health_check_cache_"
	lockKeyPrefix  = "health_check_lock_"
)

// Store is the slice of the coordination store the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Prober performs the downstream health call.
type Prober interface {
	GetHealth(targetURL string, timeout time.Duration) (int, []byte, time.Duration, error)
}

type Cache struct {
	store  Store
	prober Prober
	config *config.Config
}

func NewCache(store Store, prober Prober, config *config.Config) *Cache {
	return &Cache{
		store:  store,
		prober: prober,
		config: config,
	}
}

// Get returns the processor's health snapshot, serving from cache when
// a fresh entry exists. On a miss, exactly one caller across all
// instances refreshes; the rest wait for the cache with a bounded
// retry budget and fail with ErrCacheTimeout when it runs out.
func (c *Cache) Get(ctx context.Context, processor types.Processor) (types.HealthSnapshot, error) {
	cacheKey := cacheKeyPrefix + string(processor)
	lockKey := lockKeyPrefix + string(processor)

	snapshot, found, err := c.readCache(ctx, cacheKey)
	if err != nil {
		return types.HealthSnapshot{}, err
	}
	if found {
		return snapshot, nil
	}

	acquired, err := c.store.SetNX(ctx, lockKey, "1")
	if err != nil {
		return types.HealthSnapshot{}, fmt.Errorf("acquire refresh lock: %w", err)
	}

	if !acquired {
		// Another instance is refreshing; wait for its write.
		return c.waitForCache(ctx, cacheKey)
	}

	// The lock is never released explicitly. It expires on its own,
	// which also survives a crash mid-refresh.
	if err := c.store.Expire(ctx, lockKey, c.config.LockTTL); err != nil {
		return types.HealthSnapshot{}, fmt.Errorf("set lock expiry: %w", err)
	}

	snapshot, err = c.probe(processor)
	if err != nil {
		return types.HealthSnapshot{}, err
	}

	raw, err := sonic.Marshal(snapshot)
	if err != nil {
		return types.HealthSnapshot{}, fmt.Errorf("encode health snapshot: %w", err)
	}
	if err := c.store.SetEX(ctx, cacheKey, string(raw), c.config.CacheTTL); err != nil {
		return types.HealthSnapshot{}, fmt.Errorf("write health cache: %w", err)
	}

	return snapshot, nil
}

// Reset drops both processors' cache entries and locks, forcing fresh
// probes on the next cycle.
func (c *Cache) Reset(ctx context.Context) error {
	return c.store.Del(ctx,
		cacheKeyPrefix+string(types.ProcessorDefault),
		cacheKeyPrefix+string(types.ProcessorFallback),
		lockKeyPrefix+string(types.ProcessorDefault),
		lockKeyPrefix+string(types.ProcessorFallback),
	)
}

func (c *Cache) readCache(ctx context.Context, cacheKey string) (types.HealthSnapshot, bool, error) {
	raw, found, err := c.store.Get(ctx, cacheKey)
	if err != nil {
		return types.HealthSnapshot{}, false, fmt.Errorf("read health cache: %w", err)
	}
	if !found {
		return types.HealthSnapshot{}, false, nil
	}

	var snapshot types.HealthSnapshot
	if err := sonic.Unmarshal([]byte(raw), &snapshot); err != nil {
		return types.HealthSnapshot{}, false, fmt.Errorf("decode health snapshot: %w", err)
	}
	return snapshot, true, nil
}

func (c *Cache) waitForCache(ctx context.Context, cacheKey string) (types.HealthSnapshot, error) {
	for attempt := 0; attempt < c.config.CacheWaitRetries; attempt++ {
		snapshot, found, err := c.readCache(ctx, cacheKey)
		if err != nil {
			return types.HealthSnapshot{}, err
		}
		if found {
			return snapshot, nil
		}

		select {
		case <-ctx.Done():
			return types.HealthSnapshot{}, ctx.Err()
		case <-time.After(c.config.CacheWaitInterval):
		}
	}

	return types.HealthSnapshot{}, types.ErrCacheTimeout
}

func (c *Cache) probe(processor types.Processor) (types.HealthSnapshot, error) {
	url := c.config.ProcessorHealthURL(processor)
	if url == "" {
		return types.HealthSnapshot{}, fmt.Errorf("unknown processor: %s", processor)
	}

	statusCode, body, elapsed, err := c.prober.GetHealth(url, c.config.HealthTimeout)
	if err != nil {
		return types.HealthSnapshot{}, fmt.Errorf("probe %s: %w", processor, err)
	}
	if statusCode != 200 && statusCode != 201 {
		return types.HealthSnapshot{}, fmt.Errorf("probe %s: unexpected status %d", processor, statusCode)
	}

	var snapshot types.HealthSnapshot
	if err := sonic.Unmarshal(body, &snapshot); err != nil {
		return types.HealthSnapshot{}, fmt.Errorf("probe %s: decode body: %w", processor, err)
	}

	snapshot.Latency = math.Round(float64(elapsed.Microseconds())/1000*100) / 100
	return snapshot, nil
}
