package redis

import (
	"context"

	"github.com/joomcode/rediskit/resp"
)

// Executor is anything that can run commands: a single connection, a
// pooled handle, or the dumb synchronous connection through its adapter.
type Executor interface {
	// Do runs one command and returns the server's reply verbatim.
	// A server-level error arrives as a Value with KindError.
	Do(ctx context.Context, req Request) (resp.Value, error)
	// DoMany pipelines the requests as one batch and returns the replies
	// in request order. The batch is delivered atomically: either every
	// reply or one error.
	DoMany(ctx context.Context, reqs []Request) ([]resp.Value, error)
}

// Commands is the typed command surface over any Executor:
//
//	c := redis.Commands{E: conn}
//	v, err := c.Get(ctx, "key")
//
// Helpers only build argument vectors; interpretation of the reply is
// the caller's (EXISTS yields Integer 0/1, and so on).
type Commands struct {
	E Executor
}

func (c Commands) Pipeline(ctx context.Context, reqs []Request) ([]resp.Value, error) {
	return c.E.DoMany(ctx, reqs)
}

// Connection commands.

func (c Commands) Auth(ctx context.Context, password string) (resp.Value, error) {
	return c.E.Do(ctx, Req("AUTH", password))
}

func (c Commands) AuthUser(ctx context.Context, username, password string) (resp.Value, error) {
	return c.E.Do(ctx, Req("AUTH", username, password))
}

func (c Commands) Select(ctx context.Context, db int) (resp.Value, error) {
	return c.E.Do(ctx, Req("SELECT", db))
}

func (c Commands) Ping(ctx context.Context) (resp.Value, error) {
	return c.E.Do(ctx, Req("PING"))
}

func (c Commands) Echo(ctx context.Context, message string) (resp.Value, error) {
	return c.E.Do(ctx, Req("ECHO", message))
}

func (c Commands) Hello(ctx context.Context, version int) (resp.Value, error) {
	return c.E.Do(ctx, Req("HELLO", version))
}

// String commands.

func (c Commands) Get(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("GET", key))
}

func (c Commands) Set(ctx context.Context, key, value string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SET", key, value))
}

func (c Commands) SetEx(ctx context.Context, key string, seconds int64, value string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SETEX", key, seconds, value))
}

func (c Commands) PSetEx(ctx context.Context, key string, millis int64, value string) (resp.Value, error) {
	return c.E.Do(ctx, Req("PSETEX", key, millis, value))
}

func (c Commands) Del(ctx context.Context, keys ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("DEL", strArgs(keys)...))
}

func (c Commands) Exists(ctx context.Context, keys ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("EXISTS", strArgs(keys)...))
}

func (c Commands) Incr(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("INCR", key))
}

func (c Commands) IncrBy(ctx context.Context, key string, delta int64) (resp.Value, error) {
	return c.E.Do(ctx, Req("INCRBY", key, delta))
}

func (c Commands) Decr(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("DECR", key))
}

// MSet takes alternating key, value, key, value...
func (c Commands) MSet(ctx context.Context, pairs ...string) (resp.Value, error) {
	if len(pairs)%2 != 0 {
		return resp.Value{}, ErrCommand.New("MSET needs key/value pairs, got %d arguments", len(pairs))
	}
	return c.E.Do(ctx, Req("MSET", strArgs(pairs)...))
}

func (c Commands) MGet(ctx context.Context, keys ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("MGET", strArgs(keys)...))
}

// Hash commands.

func (c Commands) HGet(ctx context.Context, key, field string) (resp.Value, error) {
	return c.E.Do(ctx, Req("HGET", key, field))
}

func (c Commands) HSet(ctx context.Context, key, field, value string) (resp.Value, error) {
	return c.E.Do(ctx, Req("HSET", key, field, value))
}

func (c Commands) HDel(ctx context.Context, key string, fields ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("HDEL", prepend(key, fields)...))
}

func (c Commands) HGetAll(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("HGETALL", key))
}

func (c Commands) HMGet(ctx context.Context, key string, fields ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("HMGET", prepend(key, fields)...))
}

// HMSet takes the key then alternating field, value...
func (c Commands) HMSet(ctx context.Context, key string, pairs ...string) (resp.Value, error) {
	if len(pairs)%2 != 0 {
		return resp.Value{}, ErrCommand.New("HMSET needs field/value pairs, got %d arguments", len(pairs))
	}
	return c.E.Do(ctx, Req("HMSET", prepend(key, pairs)...))
}

func (c Commands) HIncrBy(ctx context.Context, key, field string, delta int64) (resp.Value, error) {
	return c.E.Do(ctx, Req("HINCRBY", key, field, delta))
}

// List commands.

func (c Commands) LPush(ctx context.Context, key string, values ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("LPUSH", prepend(key, values)...))
}

func (c Commands) RPush(ctx context.Context, key string, values ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("RPUSH", prepend(key, values)...))
}

func (c Commands) LPop(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("LPOP", key))
}

func (c Commands) RPop(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("RPOP", key))
}

func (c Commands) LLen(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("LLEN", key))
}

func (c Commands) LRange(ctx context.Context, key string, start, stop int64) (resp.Value, error) {
	return c.E.Do(ctx, Req("LRANGE", key, start, stop))
}

func (c Commands) LRem(ctx context.Context, key string, count int64, value string) (resp.Value, error) {
	return c.E.Do(ctx, Req("LREM", key, count, value))
}

// Set commands.

func (c Commands) SAdd(ctx context.Context, key string, members ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SADD", prepend(key, members)...))
}

func (c Commands) SRem(ctx context.Context, key string, members ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SREM", prepend(key, members)...))
}

func (c Commands) SMembers(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SMEMBERS", key))
}

func (c Commands) SCard(ctx context.Context, key string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SCARD", key))
}

func (c Commands) SMove(ctx context.Context, src, dst, member string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SMOVE", src, dst, member))
}

func (c Commands) SInter(ctx context.Context, keys ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SINTER", strArgs(keys)...))
}

func (c Commands) SUnion(ctx context.Context, keys ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("SUNION", strArgs(keys)...))
}

// Sorted set commands.

func (c Commands) ZAdd(ctx context.Context, key string, score float64, member string) (resp.Value, error) {
	return c.E.Do(ctx, Req("ZADD", key, score, member))
}

func (c Commands) ZRem(ctx context.Context, key string, members ...string) (resp.Value, error) {
	return c.E.Do(ctx, Req("ZREM", prepend(key, members)...))
}

func (c Commands) ZRange(ctx context.Context, key string, start, stop int64) (resp.Value, error) {
	return c.E.Do(ctx, Req("ZRANGE", key, start, stop))
}

func (c Commands) ZScore(ctx context.Context, key, member string) (resp.Value, error) {
	return c.E.Do(ctx, Req("ZSCORE", key, member))
}

// Admin commands.

func (c Commands) FlushDB(ctx context.Context) (resp.Value, error) {
	return c.E.Do(ctx, Req("FLUSHDB"))
}

func strArgs(ss []string) []interface{} {
	args := make([]interface{}, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func prepend(key string, rest []string) []interface{} {
	args := make([]interface{}, 0, len(rest)+1)
	args = append(args, key)
	for _, s := range rest {
		args = append(args, s)
	}
	return args
}
