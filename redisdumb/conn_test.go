package redisdumb_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joomcode/rediskit/redis"
	"github.com/joomcode/rediskit/redisdumb"
)

func TestDumbDo(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	conn := &redisdumb.Conn{Addr: srv.Addr(), Timeout: 2 * time.Second}
	defer conn.Close()

	v, err := conn.Do("SET", "k", "v")
	require.NoError(t, err)
	assert.Equal(t, "OK", v.AsString())

	v, err = conn.Do("GET", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v.AsString())

	v, err = conn.Do("GET", "missing")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	// server errors are values
	v, err = conn.Do("NOSUCHCOMMAND")
	require.NoError(t, err)
	assert.True(t, v.IsError())
}

func TestDumbDoMany(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	conn := &redisdumb.Conn{Addr: srv.Addr()}
	defer conn.Close()

	replies, err := conn.DoMany([]redis.Request{
		redis.Req("SET", "a", "1"),
		redis.Req("INCR", "a"),
		redis.Req("GET", "a"),
	})
	require.NoError(t, err)
	require.Len(t, replies, 3)
	assert.Equal(t, "OK", replies[0].AsString())
	assert.Equal(t, int64(2), replies[1].AsInt())
	assert.Equal(t, "2", replies[2].AsString())

	replies, err = conn.DoMany(nil)
	require.NoError(t, err)
	assert.Len(t, replies, 0)
}

func TestDumbHandshake(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()
	srv.RequireAuth("pw")

	bad := &redisdumb.Conn{Addr: srv.Addr(), Password: "nope"}
	_, err = bad.Do("PING")
	require.Error(t, err)
	bad.Close()

	conn := &redisdumb.Conn{Addr: srv.Addr(), Password: "pw", DB: 1}
	defer conn.Close()
	v, err := conn.Do("SET", "k", "v")
	require.NoError(t, err)
	assert.Equal(t, "OK", v.AsString())
	assert.True(t, srv.DB(1).Exists("k"))
}

func TestDumbRedialAfterDrop(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	conn := &redisdumb.Conn{Addr: srv.Addr()}
	defer conn.Close()

	_, err = conn.Do("PING")
	require.NoError(t, err)

	// kill the cached socket behind the client's back
	srv.Close()
	require.NoError(t, srv.Restart())

	v, err := conn.Do("PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", v.AsString())
}

func TestDumbExecutorSurface(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	conn := &redisdumb.Conn{Addr: srv.Addr()}
	defer conn.Close()

	cmds := redis.Commands{E: conn.Executor()}
	ctx := context.Background()
	v, err := cmds.Set(ctx, "via", "executor")
	require.NoError(t, err)
	assert.Equal(t, "OK", v.AsString())
	v, err = cmds.Get(ctx, "via")
	require.NoError(t, err)
	assert.Equal(t, "executor", v.AsString())
}
