package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencopilot/agentcore/internal/clock"
)

// fakeRedis is a minimal hand-rolled fake implementing the redisClient subset this
// package needs (SetNX/Get/Del/PExpire), used instead of a full in-memory Redis server —
// see DESIGN.md for why miniredis wasn't pulled in for this single consumer.
type fakeRedis struct {
	mu    sync.Mutex
	clock clock.Clock
	data  map[string]string
	exp   map[string]time.Time
}

func newFakeRedis(clk clock.Clock) *fakeRedis {
	return &fakeRedis{clock: clk, data: make(map[string]string), exp: make(map[string]time.Time)}
}

func (f *fakeRedis) expired(key string) bool {
	exp, ok := f.exp[key]
	return ok && !f.clock.Now().Before(exp)
}

func (f *fakeRedis) evictIfExpired(key string) {
	if f.expired(key) {
		delete(f.data, key)
		delete(f.exp, key)
	}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evictIfExpired(key)

	cmd := redis.NewBoolCmd(ctx)
	if _, exists := f.data[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	f.data[key] = value.(string)
	f.exp[key] = f.clock.Now().Add(ttl)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evictIfExpired(key)

	cmd := redis.NewStringCmd(ctx)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			delete(f.exp, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) PExpire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.data[key]; !ok {
		cmd.SetVal(false)
		return cmd
	}
	f.exp[key] = f.clock.Now().Add(ttl)
	cmd.SetVal(true)
	return cmd
}

// backing parametrizes the shared test suite over both Service implementations.
type backing struct {
	name string
	new  func(clk *clock.Fixed) Service
}

func backings() []backing {
	return []backing{
		{name: "memory", new: func(clk *clock.Fixed) Service { return NewMemoryService(clk) }},
		{name: "redis", new: func(clk *clock.Fixed) Service { return NewRedisService(newFakeRedis(clk)) }},
	}
}

func TestService_TryRegisterClaimsFreshFingerprint(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			clk := clock.NewFixed(time.Now())
			svc := b.new(clk)

			ok, err := svc.TryRegister(context.Background(), "plan:o/r/issues/1", "job-1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestService_TryRegisterRejectsConflictingJob(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			clk := clock.NewFixed(time.Now())
			svc := b.new(clk)

			ok, err := svc.TryRegister(context.Background(), "fp", "job-1", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = svc.TryRegister(context.Background(), "fp", "job-2", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "a live entry under a different job id must be rejected")
		})
	}
}

func TestService_TryRegisterSameJobRefreshesClaim(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			clk := clock.NewFixed(time.Now())
			svc := b.new(clk)

			ok, err := svc.TryRegister(context.Background(), "fp", "job-1", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = svc.TryRegister(context.Background(), "fp", "job-1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "the same job id re-registering must succeed, refreshing its TTL")
		})
	}
}

func TestService_TryRegisterAllowsReclaimAfterExpiry(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			clk := clock.NewFixed(time.Now())
			svc := b.new(clk)

			ok, err := svc.TryRegister(context.Background(), "fp", "job-1", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			clk.Advance(2 * time.Minute)

			ok, err = svc.TryRegister(context.Background(), "fp", "job-2", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "an expired entry must not block a new claim")
		})
	}
}

func TestService_ReleaseClearsEntry(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			clk := clock.NewFixed(time.Now())
			svc := b.new(clk)

			_, err := svc.TryRegister(context.Background(), "fp", "job-1", time.Minute)
			require.NoError(t, err)

			require.NoError(t, svc.Release(context.Background(), "fp"))

			ok, err := svc.TryRegister(context.Background(), "fp", "job-2", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestService_GetActiveReportsLiveClaim(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			clk := clock.NewFixed(time.Now())
			svc := b.new(clk)

			_, err := svc.TryRegister(context.Background(), "fp", "job-1", time.Minute)
			require.NoError(t, err)

			jobID, ok, err := svc.GetActive(context.Background(), "fp")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "job-1", jobID)
		})
	}
}

func TestService_GetActiveReportsNoneWhenAbsentOrExpired(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			clk := clock.NewFixed(time.Now())
			svc := b.new(clk)

			_, ok, err := svc.GetActive(context.Background(), "never-registered")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = svc.TryRegister(context.Background(), "fp", "job-1", time.Minute)
			require.NoError(t, err)
			clk.Advance(2 * time.Minute)

			_, ok, err = svc.GetActive(context.Background(), "fp")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFingerprint_CombinesTypeAndTaskID(t *testing.T) {
	assert.Equal(t, "plan:acme/widgets/issues/1", Fingerprint("plan", "acme/widgets/issues/1"))
	assert.NotEqual(t, Fingerprint("plan", "t1"), Fingerprint("execute", "t1"))
}
