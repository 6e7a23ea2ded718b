package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-gateway/internal/config"
	"go-gateway/internal/types"

	"github.com/bytedance/sonic"
)

// mockStore is an in-memory key/value store with atomic SetNX,
// mirroring the coordination-store semantics the cache relies on.
type mockStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string]string)}
}

func (m *mockStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.values[key]
	return val, ok, nil
}

func (m *mockStore) SetEX(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockStore) SetNX(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

func (m *mockStore) Expire(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

// fakeProber counts downstream probes and can delay to widen race
// windows.
type fakeProber struct {
	calls    atomic.Int64
	delay    time.Duration
	failing  bool
	respTime float64
	err      error
}

func (f *fakeProber) GetHealth(_ string, _ time.Duration) (int, []byte, time.Duration, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return 0, nil, 0, f.err
	}
	body, _ := sonic.Marshal(map[string]any{
		"failing":         f.failing,
		"minResponseTime": f.respTime,
	})
	return 200, body, 7 * time.Millisecond, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ProcessorDefaultURL:  "http://default.test",
		ProcessorFallbackURL: "http://fallback.test",
		CacheTTL:             5 * time.Second,
		LockTTL:              2 * time.Second,
		CacheWaitRetries:     20,
		CacheWaitInterval:    10 * time.Millisecond,
		HealthTimeout:        500 * time.Millisecond,
	}
}

func TestGetProbesOnMissAndCaches(t *testing.T) {
	store := newMockStore()
	prober := &fakeProber{respTime: 3}
	cache := NewCache(store, prober, testConfig())

	snapshot, err := cache.Get(context.Background(), types.ProcessorDefault)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snapshot.Failing {
		t.Error("snapshot reports failing")
	}
	if snapshot.MinResponseTime != 3 {
		t.Errorf("minResponseTime = %f", snapshot.MinResponseTime)
	}
	if snapshot.Latency != 7 {
		t.Errorf("latency = %f, want measured 7ms", snapshot.Latency)
	}

	// Second call must hit the cache.
	if _, err := cache.Get(context.Background(), types.ProcessorDefault); err != nil {
		t.Fatalf("Get from cache: %v", err)
	}
	if got := prober.calls.Load(); got != 1 {
		t.Errorf("probe count = %d, want 1", got)
	}
}

func TestGetServesCachedSnapshot(t *testing.T) {
	store := newMockStore()
	raw, _ := sonic.Marshal(types.HealthSnapshot{Failing: true, MinResponseTime: 9, Latency: 2})
	store.values["health_check_cache_fallback"] = string(raw)

	prober := &fakeProber{}
	cache := NewCache(store, prober, testConfig())

	snapshot, err := cache.Get(context.Background(), types.ProcessorFallback)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !snapshot.Failing || snapshot.MinResponseTime != 9 {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if prober.calls.Load() != 0 {
		t.Error("cached hit must not probe")
	}
}

func TestConcurrentMissesProbeOnce(t *testing.T) {
	store := newMockStore()
	prober := &fakeProber{delay: 30 * time.Millisecond, respTime: 3}
	cache := NewCache(store, prober, testConfig())

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Get(context.Background(), types.ProcessorDefault)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := prober.calls.Load(); got != 1 {
		t.Errorf("probe count under concurrency = %d, want 1", got)
	}
}

func TestWaitForCacheTimesOut(t *testing.T) {
	store := newMockStore()
	// Lock held by someone who never writes the cache.
	store.values["health_check_lock_default"] = "1"

	cache := NewCache(store, &fakeProber{}, testConfig())

	_, err := cache.Get(context.Background(), types.ProcessorDefault)
	if !errors.Is(err, types.ErrCacheTimeout) {
		t.Errorf("Get = %v, want ErrCacheTimeout", err)
	}
}

func TestProbeFailurePropagates(t *testing.T) {
	store := newMockStore()
	prober := &fakeProber{err: errors.New("connection refused")}
	cache := NewCache(store, prober, testConfig())

	if _, err := cache.Get(context.Background(), types.ProcessorDefault); err == nil {
		t.Fatal("probe failure must propagate")
	}
	if _, ok := store.values["health_check_cache_default"]; ok {
		t.Error("failed probe must not write the cache")
	}
}

func TestResetDeletesCacheAndLocks(t *testing.T) {
	store := newMockStore()
	store.values["health_check_cache_default"] = "x"
	store.values["health_check_cache_fallback"] = "x"
	store.values["health_check_lock_default"] = "1"
	store.values["health_check_lock_fallback"] = "1"

	cache := NewCache(store, &fakeProber{}, testConfig())
	if err := cache.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(store.values) != 0 {
		t.Errorf("Reset left keys behind: %v", store.values)
	}
}
