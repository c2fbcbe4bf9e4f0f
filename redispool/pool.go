// Package redispool amortizes session cost across many users: a fixed
// window of fully-handshaken pipelined connections handed out one
// borrower at a time, with health probing, idle eviction and manual
// sizing on top.
package redispool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/joomcode/rediskit/redis"
	"github.com/joomcode/rediskit/redisconn"
)

// entry is one pooled session with its bookkeeping.
type entry struct {
	id       string
	conn     *redisconn.Connection
	lastUsed time.Time
}

// Pool owns up to Max pipelined sessions to one server. Every session a
// caller can acquire has completed its full connect/auth/select
// handshake; the pool never hands out half-born connections.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
	idle    []*entry // FIFO: acquire pops the front, release pushes the back
	waiters []chan *entry
	// creating counts handshakes in flight so concurrent acquires cannot
	// overshoot Max
	creating     int
	initialized  bool
	shuttingDown bool

	stopCh   chan struct{}
	healthWg sync.WaitGroup

	stats counters
	log   *logrus.Entry
}

// New validates the config and returns an empty pool. Call Initialize to
// open the initial sessions.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pool{
		cfg:     cfg,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		log:     logger.WithField("pool", cfg.Addr),
	}, nil
}

// Config returns a copy of the effective configuration.
func (p *Pool) Config() Config { return p.cfg }

// Initialize opens Initial sessions. The pool is usable if at least Min
// of them handshake successfully; otherwise everything opened so far is
// torn down and an ErrNetwork error wrapping the last connect error is
// returned.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return p.shutdownError()
	}
	if p.initialized {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	var lastErr error
	opened := 0
	for i := 0; i < p.cfg.Initial; i++ {
		e, err := p.openEntry(ctx)
		if err != nil {
			lastErr = err
			p.log.WithError(err).Warn("pool: initial connection failed")
			continue
		}
		p.mu.Lock()
		p.entries[e.id] = e
		p.idle = append(p.idle, e)
		p.mu.Unlock()
		opened++
	}
	if opened < p.cfg.Min {
		p.closeAll()
		if lastErr == nil {
			lastErr = redis.ErrNetwork.New("could not open any connection")
		}
		return redis.ErrNetwork.Wrap(lastErr,
			"initialized %d of %d connections, need at least %d",
			opened, p.cfg.Initial, p.cfg.Min)
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()

	if p.cfg.HealthCheckEnabled {
		p.healthWg.Add(1)
		go p.healthLoop()
	}
	p.log.WithField("connections", opened).Info("pool: initialized")
	return nil
}

// Acquire hands out a healthy session, opening a new one while under
// Max, or waiting until a borrower returns one. Waiting is bounded by
// AcquireTimeout (or ctx, whichever ends first).
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	start := time.Now()
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if p.shuttingDown {
			p.mu.Unlock()
			return nil, p.shutdownError()
		}

		// idle FIFO first, discarding corpses
		for len(p.idle) > 0 {
			e := p.idle[0]
			p.idle = p.idle[1:]
			if e.conn.IsClosed() {
				p.removeLocked(e)
				p.mu.Unlock()
				p.destroy(e)
				p.mu.Lock()
				continue
			}
			if p.cfg.ValidateOnAcquire {
				p.mu.Unlock()
				if err := p.probe(e); err != nil {
					p.stats.validationFailures.Add(1)
					p.discard(e)
					p.mu.Lock()
					continue
				}
				return p.handOut(e, start), nil
			}
			p.mu.Unlock()
			return p.handOut(e, start), nil
		}

		// room to grow
		if len(p.entries)+p.creating < p.cfg.Max {
			p.creating++
			p.mu.Unlock()
			e, err := p.openEntry(ctx)
			p.mu.Lock()
			p.creating--
			if err != nil {
				p.mu.Unlock()
				return nil, err
			}
			if p.shuttingDown {
				p.mu.Unlock()
				p.destroy(e)
				return nil, p.shutdownError()
			}
			p.entries[e.id] = e
			p.mu.Unlock()
			return p.handOut(e, start), nil
		}

		// full house: wait for a release
		w := make(chan *entry, 1)
		p.waiters = append(p.waiters, w)
		p.stats.waiting.Add(1)
		p.mu.Unlock()

		select {
		case e := <-w:
			p.stats.waiting.Add(-1)
			if e.conn.IsClosed() {
				p.discard(e)
				continue
			}
			return p.handOut(e, start), nil
		case <-timer.C:
			if e := p.abandonWait(w); e != nil {
				p.stats.waiting.Add(-1)
				return p.handOut(e, start), nil
			}
			p.stats.waiting.Add(-1)
			return nil, redis.WithAddress(
				redis.ErrRequestTimeout.New("no connection available within %s",
					p.cfg.AcquireTimeout), p.cfg.Addr)
		case <-ctx.Done():
			if e := p.abandonWait(w); e != nil {
				p.stats.waiting.Add(-1)
				return p.handOut(e, start), nil
			}
			p.stats.waiting.Add(-1)
			return nil, redis.WithAddress(
				redis.ErrRequestTimeout.Wrap(ctx.Err(), "acquire cancelled"), p.cfg.Addr)
		case <-p.stopCh:
			p.stats.waiting.Add(-1)
			return nil, p.shutdownError()
		}
	}
}

// abandonWait removes w from the waiter queue. When the handoff already
// happened it returns the delivered entry instead so it is not leaked.
func (p *Pool) abandonWait(w chan *entry) *entry {
	p.mu.Lock()
	for i, cand := range p.waiters {
		if cand == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil
		}
	}
	p.mu.Unlock()
	select {
	case e := <-w:
		return e
	default:
		return nil
	}
}

func (p *Pool) handOut(e *entry, start time.Time) *PooledConn {
	e.lastUsed = time.Now()
	p.stats.noteAcquire(time.Since(start).Milliseconds())
	return &PooledConn{p: p, e: e}
}

// release takes a session back from a borrower.
func (p *Pool) release(e *entry) {
	p.stats.released.Add(1)
	p.stats.active.Add(-1)
	e.lastUsed = time.Now()

	p.mu.Lock()
	if p.shuttingDown || e.conn.IsClosed() {
		_, tracked := p.entries[e.id]
		p.removeLocked(e)
		p.mu.Unlock()
		if tracked {
			p.destroy(e)
		} else {
			// already destroyed by shutdown or shrink
			e.conn.Close()
		}
		return
	}
	p.mu.Unlock()

	if p.cfg.ValidateOnReturn {
		if err := p.probe(e); err != nil {
			p.stats.validationFailures.Add(1)
			p.discard(e)
			return
		}
	}

	p.mu.Lock()
	if _, tracked := p.entries[e.id]; !tracked || len(p.entries) > p.cfg.Max {
		// untracked or over-cap surge entry: do not pool it again
		p.removeLocked(e)
		p.mu.Unlock()
		p.destroy(e)
		return
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		// buffered handoff under the lock, so an abandoning waiter can
		// always find the entry it was given
		w <- e
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, e)
	p.mu.Unlock()
}

// HealthCheck probes every idle session, destroys the sick and tops the
// pool back up to Min. Runs periodically when HealthCheckEnabled, and on
// demand any time.
func (p *Pool) HealthCheck(ctx context.Context) {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return
	}
	probing := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, e := range probing {
		if err := p.probe(e); err != nil {
			p.stats.healthFailures.Add(1)
			p.log.WithError(err).WithField("conn", e.id).Warn("pool: health probe failed")
			p.discard(e)
			continue
		}
		p.mu.Lock()
		if p.shuttingDown {
			p.mu.Unlock()
			p.destroy(e)
			continue
		}
		if len(p.waiters) > 0 {
			w := p.waiters[0]
			p.waiters = p.waiters[1:]
			w <- e
			p.mu.Unlock()
			continue
		}
		p.idle = append(p.idle, e)
		p.mu.Unlock()
	}

	p.replenish(ctx)
}

// IdleCleanup evicts sessions idle past IdleTimeout, never dropping the
// pool below Min.
func (p *Pool) IdleCleanup() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)
	var evicted []*entry

	p.mu.Lock()
	kept := p.idle[:0]
	for _, e := range p.idle {
		if e.lastUsed.Before(cutoff) && len(p.entries)-len(evicted) > p.cfg.Min {
			evicted = append(evicted, e)
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept
	for _, e := range evicted {
		p.removeLocked(e)
	}
	p.mu.Unlock()

	for _, e := range evicted {
		p.destroy(e)
	}
}

// Warmup opens sessions until the pool holds Min of them.
func (p *Pool) Warmup(ctx context.Context) { p.replenish(ctx) }

// Expand opens up to n additional sessions, bounded by Max.
func (p *Pool) Expand(ctx context.Context, n int) error {
	var lastErr error
	for i := 0; i < n; i++ {
		p.mu.Lock()
		if p.shuttingDown || len(p.entries)+p.creating >= p.cfg.Max {
			p.mu.Unlock()
			break
		}
		p.creating++
		p.mu.Unlock()

		e, err := p.openEntry(ctx)
		p.mu.Lock()
		p.creating--
		if err != nil {
			p.mu.Unlock()
			lastErr = err
			continue
		}
		p.entries[e.id] = e
		p.idle = append(p.idle, e)
		p.mu.Unlock()
	}
	return lastErr
}

// Shrink destroys idle sessions until the pool holds at most target,
// clamped to [Min, Max]. Borrowed sessions are not reclaimed: when too
// few sessions are idle the pool stays above target, and borrowed
// sessions go back to the idle FIFO on release as usual.
func (p *Pool) Shrink(target int) {
	if target < p.cfg.Min {
		target = p.cfg.Min
	}
	if target > p.cfg.Max {
		target = p.cfg.Max
	}
	var evicted []*entry
	p.mu.Lock()
	for len(p.entries) > target && len(p.idle) > 0 {
		e := p.idle[0]
		p.idle = p.idle[1:]
		p.removeLocked(e)
		evicted = append(evicted, e)
	}
	p.mu.Unlock()
	for _, e := range evicted {
		p.destroy(e)
	}
}

// Shutdown closes every session and fails all waiters. Idempotent;
// Acquire returns an error from here on.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return
	}
	p.shuttingDown = true
	close(p.stopCh)
	p.mu.Unlock()

	p.healthWg.Wait()
	p.closeAll()
	p.log.Info("pool: shut down")
}

// Stats returns a snapshot of the pool accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	total := len(p.entries)
	available := len(p.idle)
	p.mu.Unlock()

	s := Stats{
		Total:              total,
		Available:          available,
		Active:             int(p.stats.active.Load()),
		Waiting:            int(p.stats.waiting.Load()),
		Acquired:           p.stats.acquired.Load(),
		Released:           p.stats.released.Load(),
		Created:            p.stats.created.Load(),
		Destroyed:          p.stats.destroyed.Load(),
		HealthFailures:     p.stats.healthFailures.Load(),
		ValidationFailures: p.stats.validationFailures.Load(),
		ReconnectAttempts:  p.stats.reconnectAttempts.Load(),
		ReconnectSuccesses: p.stats.reconnectSuccesses.Load(),
		MaxAcquireMs:       p.stats.acquireMaxMs.Load(),
		PeakActive:         p.stats.peakActive.Load(),
	}
	if n := p.stats.acquireCount.Load(); n > 0 {
		s.AvgAcquireMs = float64(p.stats.acquireTotalMs.Load()) / float64(n)
	}
	return s
}

/********** internals **********/

func (p *Pool) openEntry(ctx context.Context) (*entry, error) {
	conn, err := redisconn.Connect(ctx, p.cfg.Addr, p.cfg.connOpts())
	if err != nil {
		return nil, err
	}
	p.stats.created.Add(1)
	return &entry{
		id:       uuid.NewString(),
		conn:     conn,
		lastUsed: time.Now(),
	}, nil
}

// replenish creates replacements until the pool reaches Min, pacing
// retries with exponential backoff and giving up after
// MaxReconnectAttempts failures in a row.
func (p *Pool) replenish(ctx context.Context) {
	bo := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}
	failures := 0
	for {
		p.mu.Lock()
		if p.shuttingDown || len(p.entries)+p.creating >= p.cfg.Min {
			p.mu.Unlock()
			return
		}
		p.creating++
		p.mu.Unlock()

		p.stats.reconnectAttempts.Add(1)
		e, err := p.openEntry(ctx)

		p.mu.Lock()
		p.creating--
		if err != nil {
			p.mu.Unlock()
			failures++
			p.log.WithError(err).Warn("pool: replacement connection failed")
			if failures >= p.cfg.MaxReconnectAttempts {
				return
			}
			select {
			case <-time.After(bo.Duration()):
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		p.stats.reconnectSuccesses.Add(1)
		failures = 0
		bo.Reset()
		p.entries[e.id] = e
		if len(p.waiters) > 0 {
			w := p.waiters[0]
			p.waiters = p.waiters[1:]
			w <- e
			p.mu.Unlock()
			continue
		}
		p.idle = append(p.idle, e)
		p.mu.Unlock()
	}
}

func (p *Pool) probe(e *entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProbeTimeout)
	defer cancel()
	return e.conn.Ping(ctx)
}

// discard removes and destroys an entry that is no longer trusted.
func (p *Pool) discard(e *entry) {
	p.mu.Lock()
	p.removeLocked(e)
	p.mu.Unlock()
	p.destroy(e)
}

// removeLocked drops the entry from tracking; the caller holds mu.
func (p *Pool) removeLocked(e *entry) {
	delete(p.entries, e.id)
}

func (p *Pool) destroy(e *entry) {
	e.conn.Close()
	p.stats.destroyed.Add(1)
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	var all []*entry
	for _, e := range p.entries {
		all = append(all, e)
	}
	p.entries = make(map[string]*entry)
	p.idle = nil
	p.waiters = nil
	p.mu.Unlock()

	for _, e := range all {
		p.destroy(e)
	}
}

func (p *Pool) shutdownError() error {
	return redis.WithAddress(
		redis.ErrConnClosed.New("pool is shut down"), p.cfg.Addr)
}

func (p *Pool) healthLoop() {
	defer p.healthWg.Done()
	t := time.NewTicker(p.cfg.HealthInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-t.C:
			p.HealthCheck(context.Background())
			p.IdleCleanup()
		}
	}
}
