package redispool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joomcode/rediskit/redis"
	. "github.com/joomcode/rediskit/redispool"
)

func startPool(t *testing.T, mutate func(*Config)) (*miniredis.Miniredis, *Pool) {
	t.Helper()
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	cfg := Config{
		Addr:           srv.Addr(),
		Min:            2,
		Max:            3,
		Initial:        2,
		AcquireTimeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(p.Shutdown)
	return srv, p
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Addr: "x", Min: 5, Max: 3})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, redis.ErrCommand))

	_, err = New(Config{Addr: "x", Min: 1, Initial: 5, Max: 3})
	require.Error(t, err)

	_, err = New(Config{Addr: "x", Max: -1})
	require.Error(t, err)
}

func TestInitializeOpensInitial(t *testing.T) {
	_, p := startPool(t, nil)
	s := p.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 2, s.Available)
	assert.Equal(t, int64(2), s.Created)
}

func TestInitializeFailsWithoutServer(t *testing.T) {
	p, err := New(Config{Addr: "127.0.0.1:1", Min: 1, Max: 2, Initial: 1})
	require.NoError(t, err)
	err = p.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, redis.ErrNetwork))
}

func TestAcquireRoundTrip(t *testing.T) {
	_, p := startPool(t, nil)
	ctx := context.Background()

	pc, err := p.Acquire(ctx)
	require.NoError(t, err)

	v, err := pc.Do(ctx, redis.Req("SET", "k", "v"))
	require.NoError(t, err)
	assert.Equal(t, "OK", v.AsString())

	v, err = pc.Commands().Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v.AsString())

	s := p.Stats()
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 1, s.Available)

	pc.Release()
	s = p.Stats()
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 2, s.Available)
	assert.Equal(t, s.Acquired, s.Released)

	// released handle is inert
	_, err = pc.Do(ctx, redis.Req("PING"))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, redis.ErrConnClosed))
	assert.Nil(t, pc.Conn())
	pc.Release() // idempotent
}

func TestAcquireUnderPressure(t *testing.T) {
	// min=2 max=3: three holders saturate the pool, the fourth waits
	// until a release hands a session over
	_, p := startPool(t, nil)
	ctx := context.Background()

	var held []*PooledConn
	for i := 0; i < 3; i++ {
		pc, err := p.Acquire(ctx)
		require.NoError(t, err, "acquire %d", i)
		held = append(held, pc)
	}
	s := p.Stats()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 3, s.Active)

	got := make(chan *PooledConn, 1)
	errs := make(chan error, 1)
	go func() {
		pc, err := p.Acquire(ctx)
		if err != nil {
			errs <- err
			return
		}
		got <- pc
	}()

	// the fourth acquirer must actually be waiting
	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 },
		time.Second, 5*time.Millisecond)

	held[0].Release()

	select {
	case pc := <-got:
		defer pc.Release()
	case err := <-errs:
		t.Fatalf("waiter failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not get a released session")
	}

	s = p.Stats()
	assert.Equal(t, int64(4), s.Acquired)
	assert.LessOrEqual(t, s.Total, 3)
	assert.Equal(t, int64(3), s.PeakActive)

	for _, pc := range held[1:] {
		pc.Release()
	}
}

func TestAcquireTimeout(t *testing.T) {
	_, p := startPool(t, func(c *Config) {
		c.Min, c.Max, c.Initial = 1, 1, 1
		c.AcquireTimeout = 100 * time.Millisecond
	})
	ctx := context.Background()

	pc, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer pc.Release()

	start := time.Now()
	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, redis.ErrRequestTimeout), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, p.Stats().Waiting)
}

func TestPoolNeverExceedsMax(t *testing.T) {
	_, p := startPool(t, nil)
	ctx := context.Background()

	const borrowers = 12
	var wg sync.WaitGroup
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pc, err := p.Acquire(ctx)
			if err != nil {
				return
			}
			_, _ = pc.Do(ctx, redis.Req("PING"))
			time.Sleep(10 * time.Millisecond)
			pc.Release()
		}()
	}
	wg.Wait()

	s := p.Stats()
	assert.LessOrEqual(t, s.Total, 3)
	assert.LessOrEqual(t, s.PeakActive, int64(3))
	assert.Equal(t, s.Acquired, s.Released)
	assert.Equal(t, 0, s.Active)
}

func TestValidateOnAcquireDiscardsDeadSessions(t *testing.T) {
	srv, p := startPool(t, func(c *Config) {
		c.ValidateOnAcquire = true
		c.ProbeTimeout = 200 * time.Millisecond
	})
	ctx := context.Background()

	// kill every pooled socket; validation must notice and replace
	srv.Close()
	require.NoError(t, srv.Restart())
	time.Sleep(50 * time.Millisecond)

	pc, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer pc.Release()

	v, err := pc.Do(ctx, redis.Req("PING"))
	require.NoError(t, err)
	assert.Equal(t, "PONG", v.AsString())
}

func TestHealthCheckReplacesDead(t *testing.T) {
	srv, p := startPool(t, func(c *Config) {
		c.ProbeTimeout = 200 * time.Millisecond
	})

	srv.Close()
	require.NoError(t, srv.Restart())
	time.Sleep(50 * time.Millisecond)

	p.HealthCheck(context.Background())

	s := p.Stats()
	assert.GreaterOrEqual(t, s.Total, 2)
	assert.GreaterOrEqual(t, s.ReconnectSuccesses, int64(1))

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer pc.Release()
	require.NoError(t, pc.Conn().Ping(context.Background()))
}

func TestIdleCleanupRespectsMin(t *testing.T) {
	_, p := startPool(t, func(c *Config) {
		c.Min, c.Max, c.Initial = 1, 3, 3
		c.IdleTimeout = time.Nanosecond
	})
	time.Sleep(time.Millisecond)

	p.IdleCleanup()
	s := p.Stats()
	assert.Equal(t, 1, s.Total)
	assert.GreaterOrEqual(t, s.Destroyed, int64(2))
}

func TestExpandAndShrink(t *testing.T) {
	_, p := startPool(t, nil)
	ctx := context.Background()

	require.NoError(t, p.Expand(ctx, 5))
	assert.Equal(t, 3, p.Stats().Total) // clamped at max

	p.Shrink(0) // clamped at min
	assert.Equal(t, 2, p.Stats().Total)
}

func TestWarmupTopsUpToMin(t *testing.T) {
	srv, p := startPool(t, func(c *Config) {
		c.ProbeTimeout = 200 * time.Millisecond
	})
	ctx := context.Background()

	// a restart leaves the pool holding only corpses
	srv.Close()
	require.NoError(t, srv.Restart())
	time.Sleep(50 * time.Millisecond)

	pc, err := p.Acquire(ctx) // discards the dead, opens one fresh
	require.NoError(t, err)
	pc.Release()

	p.Warmup(ctx)
	assert.GreaterOrEqual(t, p.Stats().Total, 2)
}

func TestShutdown(t *testing.T) {
	_, p := startPool(t, nil)
	ctx := context.Background()

	pc, err := p.Acquire(ctx)
	require.NoError(t, err)

	p.Shutdown()
	p.Shutdown() // idempotent

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, redis.ErrConnClosed))

	s := p.Stats()
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0, s.Available)

	// a borrow returned after shutdown is destroyed, not pooled
	pc.Release()
	assert.Equal(t, 0, p.Stats().Total)
}

func TestPooledConnSeesSelectedDB(t *testing.T) {
	srv, p := startPool(t, func(c *Config) {
		c.DB = 3
	})
	ctx := context.Background()

	pc, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer pc.Release()

	_, err = pc.Do(ctx, redis.Req("SET", "pooled", "1"))
	require.NoError(t, err)
	assert.True(t, srv.DB(3).Exists("pooled"))
}

func TestAcquireLatencyStats(t *testing.T) {
	_, p := startPool(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		pc, err := p.Acquire(ctx)
		require.NoError(t, err)
		pc.Release()
	}
	s := p.Stats()
	assert.Equal(t, int64(5), s.Acquired)
	assert.GreaterOrEqual(t, s.MaxAcquireMs, int64(0))
	assert.GreaterOrEqual(t, s.AvgAcquireMs, float64(0))
}
