// Package redisdumb is a deliberately simple synchronous Redis session:
// one blocking socket, one request at a time, no goroutines. It shares
// the codec with the pipelined connection and exists for scripts and
// tools where the pipelined machinery is overkill.
package redisdumb

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/joomcode/errorx"

	"github.com/joomcode/rediskit/redis"
	"github.com/joomcode/rediskit/resp"
)

// DefaultTimeout bounds dial and each command round-trip when
// Conn.Timeout is zero.
var DefaultTimeout = 5 * time.Second

const readChunk = 4 * 1024

// Conn is a synchronous connection. The zero value plus Addr is usable;
// dialing and the handshake happen lazily on the first command. A broken
// connection is redialed once per call, as a command on a fresh
// connection is the cheapest liveness probe there is.
type Conn struct {
	Addr     string
	Username string
	Password string
	DB       int
	// RespVersion is 2 or 3; zero means 2.
	RespVersion int
	Timeout     time.Duration

	c   net.Conn
	buf []byte
}

// Do runs one command and returns the reply. Server-level errors come
// back as a Value with KindError, exactly as on the pipelined session.
func (c *Conn) Do(cmd string, args ...interface{}) (resp.Value, error) {
	vals, err := c.DoMany([]redis.Request{redis.Req(cmd, args...)})
	if err != nil {
		return resp.Value{}, err
	}
	return vals[0], nil
}

// DoMany writes the requests back-to-back and reads the same number of
// replies, a blocking pipeline.
func (c *Conn) DoMany(reqs []redis.Request) ([]resp.Value, error) {
	if len(reqs) == 0 {
		return []resp.Value{}, nil
	}
	var wire []byte
	var err error
	for _, req := range reqs {
		wire, err = req.Append(wire)
		if err != nil {
			return nil, err
		}
	}

	try := 1
	if c.c != nil {
		// the cached connection may have died since the last call
		try = 2
	}
	var lastErr error
	for i := 0; i < try; i++ {
		if c.c == nil {
			if err := c.dial(); err != nil {
				return nil, err
			}
		}
		c.c.SetDeadline(time.Now().Add(c.timeout()))
		vals, err := c.roundtrip(wire, len(reqs))
		if err == nil {
			return vals, nil
		}
		lastErr = err
		c.Close()
		if !errorx.IsOfType(err, redis.ErrNetwork) && !errorx.IsOfType(err, redis.ErrConnClosed) {
			break
		}
	}
	return nil, lastErr
}

// Close drops the connection; the next command redials.
func (c *Conn) Close() {
	if c.c != nil {
		c.c.Close()
		c.c = nil
	}
	c.buf = c.buf[:0]
}

// Executor adapts the connection to the typed command surface:
//
//	cmds := redis.Commands{E: conn.Executor()}
//
// A context deadline, when present, overrides Conn.Timeout for the call.
func (c *Conn) Executor() redis.Executor { return dumbExecutor{c} }

func (c *Conn) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Conn) dial() error {
	nc, err := net.DialTimeout("tcp", c.Addr, c.timeout())
	if err != nil {
		return redis.WithAddress(redis.ErrNetwork.Wrap(err, "could not connect"), c.Addr)
	}
	c.c = nc
	c.buf = c.buf[:0]
	if err := c.handshake(); err != nil {
		c.Close()
		return err
	}
	return nil
}

// handshake runs HELLO/AUTH/SELECT synchronously on the fresh socket.
func (c *Conn) handshake() error {
	var reqs []redis.Request
	if c.RespVersion == 3 {
		args := []interface{}{3}
		if c.Password != "" {
			user := c.Username
			if user == "" {
				user = "default"
			}
			args = append(args, "AUTH", user, c.Password)
		}
		reqs = append(reqs, redis.Req("HELLO", args...))
	} else if c.Password != "" {
		if c.Username != "" {
			reqs = append(reqs, redis.Req("AUTH", c.Username, c.Password))
		} else {
			reqs = append(reqs, redis.Req("AUTH", c.Password))
		}
	}
	selectAt := -1
	if c.DB != 0 {
		selectAt = len(reqs)
		reqs = append(reqs, redis.Req("SELECT", c.DB))
	}
	if len(reqs) == 0 {
		return nil
	}

	var wire []byte
	var err error
	for _, req := range reqs {
		wire, err = req.Append(wire)
		if err != nil {
			return err
		}
	}
	c.c.SetDeadline(time.Now().Add(c.timeout()))
	vals, err := c.roundtrip(wire, len(reqs))
	if err != nil {
		return err
	}
	for i, v := range vals {
		if !v.IsError() {
			continue
		}
		if i == selectAt {
			return redis.ErrDbIndexInvalid.
				New("SELECT %d rejected: %s", c.DB, v.AsString()).
				WithProperty(redis.EKDb, c.DB)
		}
		return redis.WithAddress(
			redis.ErrAuth.New("handshake rejected: %s", v.AsString()), c.Addr)
	}
	return nil
}

func (c *Conn) roundtrip(wire []byte, replies int) ([]resp.Value, error) {
	for len(wire) > 0 {
		n, err := c.c.Write(wire)
		wire = wire[n:]
		if err != nil {
			return nil, redis.WithAddress(redis.ErrNetwork.Wrap(err, "socket write failed"), c.Addr)
		}
	}
	vals := make([]resp.Value, 0, replies)
	for len(vals) < replies {
		v, err := c.readValue()
		if err != nil {
			return nil, err
		}
		if v.IsPush() {
			// nothing subscribes on a dumb connection
			continue
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (c *Conn) readValue() (resp.Value, error) {
	for {
		if len(c.buf) > 0 {
			consumed, v, err := resp.Parse(c.buf)
			switch err {
			case nil:
				c.buf = c.buf[consumed:]
				return v, nil
			case resp.ErrIncomplete:
			default:
				return resp.Value{}, redis.WithAddress(
					redis.ErrParse.Wrap(err, "reply stream is unparseable"), c.Addr)
			}
		}
		var chunk [readChunk]byte
		n, err := c.c.Read(chunk[:])
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return resp.Value{}, redis.WithAddress(
					redis.ErrConnClosed.Wrap(err, "server closed the connection"), c.Addr)
			}
			return resp.Value{}, redis.WithAddress(
				redis.ErrNetwork.Wrap(err, "socket read failed"), c.Addr)
		}
	}
}

type dumbExecutor struct {
	c *Conn
}

func (e dumbExecutor) Do(ctx context.Context, req redis.Request) (resp.Value, error) {
	vals, err := e.DoMany(ctx, []redis.Request{req})
	if err != nil {
		return resp.Value{}, err
	}
	return vals[0], nil
}

func (e dumbExecutor) DoMany(ctx context.Context, reqs []redis.Request) ([]resp.Value, error) {
	saved := e.c.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		e.c.Timeout = time.Until(deadline)
	}
	vals, err := e.c.DoMany(reqs)
	e.c.Timeout = saved
	return vals, err
}
