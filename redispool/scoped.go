package redispool

import (
	"context"
	"sync"

	"github.com/joomcode/rediskit/redis"
	"github.com/joomcode/rediskit/redisconn"
	"github.com/joomcode/rediskit/resp"
)

// PooledConn is a scoped borrow of one session. Release returns the
// session to the pool; after that every method fails and further
// releases are no-ops, so defer pc.Release() is always safe.
type PooledConn struct {
	p *Pool

	mu sync.Mutex
	e  *entry
}

// Do runs one command on the borrowed session.
func (pc *PooledConn) Do(ctx context.Context, req redis.Request) (resp.Value, error) {
	e, err := pc.entry()
	if err != nil {
		return resp.Value{}, err
	}
	return e.conn.Do(ctx, req)
}

// DoMany pipelines reqs as one batch on the borrowed session.
func (pc *PooledConn) DoMany(ctx context.Context, reqs []redis.Request) ([]resp.Value, error) {
	e, err := pc.entry()
	if err != nil {
		return nil, err
	}
	return e.conn.DoMany(ctx, reqs)
}

// Commands is the typed command surface bound to this borrow.
func (pc *PooledConn) Commands() redis.Commands {
	return redis.Commands{E: pc}
}

// Conn exposes the underlying session for APIs that want it directly.
// Nil after Release.
func (pc *PooledConn) Conn() *redisconn.Connection {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.e == nil {
		return nil
	}
	return pc.e.conn
}

// Release hands the session back. Idempotent.
func (pc *PooledConn) Release() {
	pc.mu.Lock()
	e := pc.e
	pc.e = nil
	pc.mu.Unlock()
	if e != nil {
		pc.p.release(e)
	}
}

func (pc *PooledConn) entry() (*entry, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.e == nil {
		return nil, redis.ErrConnClosed.New("connection was already released to the pool")
	}
	return pc.e, nil
}

var _ redis.Executor = (*PooledConn)(nil)
