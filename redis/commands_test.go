package redis_test

import (
	"context"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/joomcode/rediskit/redis"
	"github.com/joomcode/rediskit/resp"
)

// recorder captures what the command helpers submit.
type recorder struct {
	last  Request
	many  []Request
	reply resp.Value
}

func (r *recorder) Do(_ context.Context, req Request) (resp.Value, error) {
	r.last = req
	return r.reply, nil
}

func (r *recorder) DoMany(_ context.Context, reqs []Request) ([]resp.Value, error) {
	r.many = reqs
	return make([]resp.Value, len(reqs)), nil
}

func TestCommandsBuildExpectedRequests(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{reply: resp.SimpleString("OK")}
	c := Commands{E: rec}

	cases := []struct {
		run  func() (resp.Value, error)
		cmd  string
		args []interface{}
	}{
		{func() (resp.Value, error) { return c.Ping(ctx) }, "PING", nil},
		{func() (resp.Value, error) { return c.Echo(ctx, "hi") }, "ECHO", []interface{}{"hi"}},
		{func() (resp.Value, error) { return c.Auth(ctx, "pw") }, "AUTH", []interface{}{"pw"}},
		{func() (resp.Value, error) { return c.AuthUser(ctx, "u", "pw") }, "AUTH", []interface{}{"u", "pw"}},
		{func() (resp.Value, error) { return c.Select(ctx, 3) }, "SELECT", []interface{}{3}},
		{func() (resp.Value, error) { return c.Hello(ctx, 3) }, "HELLO", []interface{}{3}},
		{func() (resp.Value, error) { return c.Get(ctx, "k") }, "GET", []interface{}{"k"}},
		{func() (resp.Value, error) { return c.Set(ctx, "k", "v") }, "SET", []interface{}{"k", "v"}},
		{func() (resp.Value, error) { return c.SetEx(ctx, "k", 60, "v") }, "SETEX", []interface{}{"k", int64(60), "v"}},
		{func() (resp.Value, error) { return c.PSetEx(ctx, "k", 500, "v") }, "PSETEX", []interface{}{"k", int64(500), "v"}},
		{func() (resp.Value, error) { return c.Del(ctx, "a", "b") }, "DEL", []interface{}{"a", "b"}},
		{func() (resp.Value, error) { return c.Exists(ctx, "a") }, "EXISTS", []interface{}{"a"}},
		{func() (resp.Value, error) { return c.Incr(ctx, "n") }, "INCR", []interface{}{"n"}},
		{func() (resp.Value, error) { return c.IncrBy(ctx, "n", 5) }, "INCRBY", []interface{}{"n", int64(5)}},
		{func() (resp.Value, error) { return c.Decr(ctx, "n") }, "DECR", []interface{}{"n"}},
		{func() (resp.Value, error) { return c.MSet(ctx, "a", "1", "b", "2") }, "MSET", []interface{}{"a", "1", "b", "2"}},
		{func() (resp.Value, error) { return c.MGet(ctx, "a", "b") }, "MGET", []interface{}{"a", "b"}},
		{func() (resp.Value, error) { return c.HGet(ctx, "h", "f") }, "HGET", []interface{}{"h", "f"}},
		{func() (resp.Value, error) { return c.HSet(ctx, "h", "f", "v") }, "HSET", []interface{}{"h", "f", "v"}},
		{func() (resp.Value, error) { return c.HDel(ctx, "h", "f1", "f2") }, "HDEL", []interface{}{"h", "f1", "f2"}},
		{func() (resp.Value, error) { return c.HGetAll(ctx, "h") }, "HGETALL", []interface{}{"h"}},
		{func() (resp.Value, error) { return c.HMGet(ctx, "h", "f") }, "HMGET", []interface{}{"h", "f"}},
		{func() (resp.Value, error) { return c.HMSet(ctx, "h", "f", "v") }, "HMSET", []interface{}{"h", "f", "v"}},
		{func() (resp.Value, error) { return c.HIncrBy(ctx, "h", "f", 2) }, "HINCRBY", []interface{}{"h", "f", int64(2)}},
		{func() (resp.Value, error) { return c.LPush(ctx, "l", "v") }, "LPUSH", []interface{}{"l", "v"}},
		{func() (resp.Value, error) { return c.RPush(ctx, "l", "v", "w") }, "RPUSH", []interface{}{"l", "v", "w"}},
		{func() (resp.Value, error) { return c.LPop(ctx, "l") }, "LPOP", []interface{}{"l"}},
		{func() (resp.Value, error) { return c.RPop(ctx, "l") }, "RPOP", []interface{}{"l"}},
		{func() (resp.Value, error) { return c.LLen(ctx, "l") }, "LLEN", []interface{}{"l"}},
		{func() (resp.Value, error) { return c.LRange(ctx, "l", 0, -1) }, "LRANGE", []interface{}{"l", int64(0), int64(-1)}},
		{func() (resp.Value, error) { return c.LRem(ctx, "l", 1, "v") }, "LREM", []interface{}{"l", int64(1), "v"}},
		{func() (resp.Value, error) { return c.SAdd(ctx, "s", "m") }, "SADD", []interface{}{"s", "m"}},
		{func() (resp.Value, error) { return c.SRem(ctx, "s", "m") }, "SREM", []interface{}{"s", "m"}},
		{func() (resp.Value, error) { return c.SMembers(ctx, "s") }, "SMEMBERS", []interface{}{"s"}},
		{func() (resp.Value, error) { return c.SCard(ctx, "s") }, "SCARD", []interface{}{"s"}},
		{func() (resp.Value, error) { return c.SMove(ctx, "s1", "s2", "m") }, "SMOVE", []interface{}{"s1", "s2", "m"}},
		{func() (resp.Value, error) { return c.SInter(ctx, "s1", "s2") }, "SINTER", []interface{}{"s1", "s2"}},
		{func() (resp.Value, error) { return c.SUnion(ctx, "s1", "s2") }, "SUNION", []interface{}{"s1", "s2"}},
		{func() (resp.Value, error) { return c.ZAdd(ctx, "z", 1.5, "m") }, "ZADD", []interface{}{"z", 1.5, "m"}},
		{func() (resp.Value, error) { return c.ZRem(ctx, "z", "m") }, "ZREM", []interface{}{"z", "m"}},
		{func() (resp.Value, error) { return c.ZRange(ctx, "z", 0, 9) }, "ZRANGE", []interface{}{"z", int64(0), int64(9)}},
		{func() (resp.Value, error) { return c.ZScore(ctx, "z", "m") }, "ZSCORE", []interface{}{"z", "m"}},
		{func() (resp.Value, error) { return c.FlushDB(ctx) }, "FLUSHDB", nil},
	}
	for _, tc := range cases {
		_, err := tc.run()
		require.NoError(t, err, "cmd %s", tc.cmd)
		assert.Equal(t, tc.cmd, rec.last.Cmd)
		if tc.args == nil {
			assert.Empty(t, rec.last.Args, "cmd %s", tc.cmd)
		} else {
			assert.Equal(t, tc.args, rec.last.Args, "cmd %s", tc.cmd)
		}
	}
}

func TestCommandsPairValidation(t *testing.T) {
	c := Commands{E: &recorder{}}
	_, err := c.MSet(context.Background(), "key-without-value")
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ErrCommand))

	_, err = c.HMSet(context.Background(), "h", "f")
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ErrCommand))
}

func TestCommandsPipeline(t *testing.T) {
	rec := &recorder{}
	c := Commands{E: rec}
	reqs := []Request{Req("PING"), Req("GET", "k")}
	replies, err := c.Pipeline(context.Background(), reqs)
	require.NoError(t, err)
	assert.Len(t, replies, 2)
	assert.Equal(t, reqs, rec.many)
}

func TestRequestAppendRejectsBadArg(t *testing.T) {
	_, err := Req("SET", "k", struct{}{}).Append(nil)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ErrCommand))
}

func TestChanFutureResolvesOnce(t *testing.T) {
	f := NewChanFuture()
	f.Resolve([]resp.Value{resp.Int(1)}, nil, 0)
	f.Resolve(nil, ErrInternal.New("second resolution must be ignored"), 0)

	replies, err := f.Value()
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, int64(1), replies[0].AsInt())

	select {
	case <-f.Done():
	default:
		t.Fatal("Done channel not closed")
	}
}
