/*
Package rediskit - pipelined asynchronous Redis client.

https://redis.io/topics/pipelining

One TCP connection can serve many concurrent goroutines: requests are
written to the socket back-to-back in submission order, replies are read
in the same order, and each reply is routed to its caller positionally.
RESP has no request identifiers, so this in-order discipline is the whole
multiplexing story - and it is also what makes Redis fast, since implicit
pipelining saves system calls on both ends.

Structure

- root package is empty

- resp holds the RESP2/RESP3 codec: the Value reply sum, the incremental
parser and the request encoders

- redis holds the shared core: the errorx-based error taxonomy, Request,
futures and the typed command surface over any Executor

- redisconn is the pipelined session: two goroutines per connection (a
writer and a reader), a ring buffer staging socket reads, and a FIFO of
pending batches binding replies to callers

- redisdumb is a deliberately simple synchronous session over the same
codec, for scripts

- redispool is a connection pool over redisconn with health checking,
idle eviction, sizing operations and borrow/return accounting

- testbed is an in-process scriptable RESP server used by the tests

Usage

	conn, err := redisconn.Connect(ctx, "127.0.0.1:6379", redisconn.Opts{})
	if err != nil {
		// handle
	}
	defer conn.Close()

	v, err := conn.Do(ctx, redis.Req("GET", "key"))

	cmds := redis.Commands{E: conn}
	v, err = cmds.Set(ctx, "key", "value")

	replies, err := conn.DoMany(ctx, []redis.Request{
		redis.Req("SET", "a", "1"),
		redis.Req("GET", "a"),
	})

Server-side errors ("-ERR ...") are not Go errors: they come back as a
Value with KindError, so a pipeline returns every reply even when some
sub-commands fail. Go errors mean the request itself could not complete:
network trouble, a closed connection, a timeout, a broken stream.

Blocking commands (BLPOP and friends) and subscriptions do not belong on
a pipelined connection - they would stall or re-mode the shared socket.
Use redisdumb for those situations, or a dedicated connection.
*/
package rediskit
