package redisconn

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/joomcode/rediskit/redis"
	"github.com/joomcode/rediskit/resp"
)

const (
	defaultDialTimeout      = 5 * time.Second
	defaultHandshakeTimeout = 5 * time.Second
	defaultQueueSize        = 512
	unboundedQueueSize      = 65536

	// writeCoalesceLimit bounds, in bytes, how much queued batch data the
	// writer glues into one socket write; the batch that crosses it is
	// still included whole.
	writeCoalesceLimit = 128 * 1024
)

// Opts tunes a Connection.
type Opts struct {
	// Username and Password are used during the handshake. On RESP3 they
	// ride in HELLO AUTH, on RESP2 in AUTH. Username without RESP3
	// requires a server with ACLs (AUTH user pass).
	Username string
	Password string
	// DB is the database to SELECT when non-zero.
	DB int
	// RespVersion is 2 or 3. Zero means 2; 3 sends HELLO 3.
	RespVersion int
	// DialTimeout bounds the TCP connect. Zero means 5s.
	DialTimeout time.Duration
	// HandshakeTimeout bounds HELLO/AUTH/SELECT. Zero means 5s.
	HandshakeTimeout time.Duration
	// IOTimeout, when positive, is applied as a deadline to every socket
	// write and to each read that starts while replies are owed. A read
	// that starts on an idle connection gets no deadline, so a quiet
	// session is not torn down; that read keeps waiting without one even
	// if requests are sent while it is blocked.
	IOTimeout time.Duration
	// TCPKeepAlive for the dialer. Zero picks the Go default.
	TCPKeepAlive time.Duration
	// RecvBufferInitial / RecvBufferMax size the read ring buffer.
	RecvBufferInitial int
	RecvBufferMax     int
	// QueueSize bounds the request channel; submission blocks when it is
	// full. Zero means 512, negative a large effectively-unbounded queue.
	QueueSize int
	// Logger receives lifecycle events; nil logs through logrus.
	Logger Logger
	// OnPush receives RESP3 push frames. Called from the reader
	// goroutine, so it must not block. Nil drops pushes.
	OnPush func(resp.Value)
	// Handle is returned by Connection.Handle, for the pool or the
	// application to hang bookkeeping on.
	Handle interface{}
}

// batch is one submission unit: a single command or a whole pipeline.
// It owns its encoded bytes and collects its replies in arrival order.
type batch struct {
	buf      []byte
	expected int
	replies  []resp.Value
	fut      redis.Future
	n        uint64
	once     sync.Once
}

func (b *batch) resolve(replies []resp.Value, err error) {
	b.once.Do(func() {
		if b.fut != nil {
			b.fut.Resolve(replies, err, b.n)
		}
	})
}

// Connection is a pipelined session over one TCP connection.
//
// Any number of goroutines may submit concurrently. Requests are written
// back-to-back in submission order; RESP replies come back in the same
// order, so the reader routes each reply to the oldest incomplete batch.
// No locks are exposed to callers and none are held across socket IO.
type Connection struct {
	ctx    context.Context
	cancel context.CancelFunc

	addr string
	opts Opts
	c    net.Conn

	reqCh chan *batch

	// mu guards pending, closed and closeErr. The writer appends to
	// pending, the reader pops; nobody holds mu while touching the
	// socket.
	mu       sync.Mutex
	pending  []*batch
	closed   bool
	closeErr error

	ring *RingBuffer
}

// Connect dials addr ("host:port"), starts the IO goroutines and runs
// the handshake (HELLO/AUTH/SELECT per Opts). The returned connection is
// ready for traffic.
func Connect(ctx context.Context, addr string, opts Opts) (*Connection, error) {
	if ctx == nil {
		return nil, redis.ErrInternal.New("context must not be nil")
	}
	if addr == "" {
		return nil, redis.ErrAddressInvalid.New("no address provided")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, redis.ErrAddressInvalid.Wrap(err, "address %q is not host:port", addr)
	}
	switch opts.RespVersion {
	case 0:
		opts.RespVersion = 2
	case 2, 3:
	default:
		return nil, redis.ErrCommand.New("resp version %d is not 2 or 3", opts.RespVersion)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = defaultQueueSize
	} else if opts.QueueSize < 0 {
		opts.QueueSize = unboundedQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = defaultLogger{}
	}

	conn := &Connection{
		addr:  addr,
		opts:  opts,
		reqCh: make(chan *batch, opts.QueueSize),
		ring:  NewRingBuffer(opts.RecvBufferInitial, opts.RecvBufferMax),
	}
	conn.ctx, conn.cancel = context.WithCancel(ctx)
	conn.report(LogConnecting)

	dialer := net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: opts.TCPKeepAlive,
	}
	c, err := dialer.DialContext(conn.ctx, "tcp", addr)
	if err != nil {
		conn.cancel()
		nerr := redis.WithAddress(redis.ErrNetwork.Wrap(err, "could not connect"), addr)
		conn.report(LogConnectFailed, nerr)
		return nil, nerr
	}
	conn.c = c

	// the handshake itself travels the normal request path, so the IO
	// goroutines start first
	go conn.writer()
	go conn.reader()

	if err := conn.handshake(); err != nil {
		conn.shutdown(err, false)
		conn.report(LogConnectFailed, err)
		return nil, err
	}
	conn.report(LogConnected, c.LocalAddr().String(), c.RemoteAddr().String())
	return conn, nil
}

// ConnectURL is Connect for redis://[user[:pass]@]host[:port][/db] URLs.
// Credentials and db from the URL override those in opts.
func ConnectURL(ctx context.Context, rawurl string, opts Opts) (*Connection, error) {
	t, err := ParseURL(rawurl)
	if err != nil {
		return nil, err
	}
	if t.Username != "" {
		opts.Username = t.Username
	}
	if t.Password != "" {
		opts.Password = t.Password
	}
	if t.DB != 0 {
		opts.DB = t.DB
	}
	return Connect(ctx, t.Addr, opts)
}

func (conn *Connection) handshake() error {
	ctx, cancel := context.WithTimeout(conn.ctx, conn.opts.HandshakeTimeout)
	defer cancel()

	if conn.opts.RespVersion == 3 {
		args := []interface{}{3}
		if conn.opts.Password != "" {
			user := conn.opts.Username
			if user == "" {
				user = "default"
			}
			args = append(args, "AUTH", user, conn.opts.Password)
		}
		v, err := conn.Do(ctx, redis.Req("HELLO", args...))
		if err != nil {
			return err
		}
		if v.IsError() {
			return redis.WithAddress(
				redis.ErrAuth.New("HELLO rejected: %s", v.AsString()), conn.addr)
		}
	} else if conn.opts.Password != "" {
		req := redis.Req("AUTH", conn.opts.Password)
		if conn.opts.Username != "" {
			req = redis.Req("AUTH", conn.opts.Username, conn.opts.Password)
		}
		v, err := conn.Do(ctx, req)
		if err != nil {
			return err
		}
		if v.IsError() {
			return redis.WithAddress(
				redis.ErrAuth.New("AUTH rejected: %s", v.AsString()), conn.addr)
		}
	}

	if conn.opts.DB != 0 {
		v, err := conn.Do(ctx, redis.Req("SELECT", conn.opts.DB))
		if err != nil {
			return err
		}
		if v.IsError() {
			return redis.ErrDbIndexInvalid.
				New("SELECT %d rejected: %s", conn.opts.DB, v.AsString()).
				WithProperty(redis.EKDb, conn.opts.DB)
		}
	}
	return nil
}

// Addr is the address the connection was dialed with.
func (conn *Connection) Addr() string { return conn.addr }

// Handle returns the user handle from Opts.
func (conn *Connection) Handle() interface{} { return conn.opts.Handle }

// RemoteAddr is the address of the Redis socket.
func (conn *Connection) RemoteAddr() string {
	if conn.c == nil {
		return ""
	}
	return conn.c.RemoteAddr().String()
}

// LocalAddr is the outgoing socket address.
func (conn *Connection) LocalAddr() string {
	if conn.c == nil {
		return ""
	}
	return conn.c.LocalAddr().String()
}

// IsClosed reports whether the session reached its terminal state.
func (conn *Connection) IsClosed() bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.closed
}

// Close transitions the session to closed: the socket is shut down and
// every queued or in-flight batch fails with a closed-connection error.
// Idempotent.
func (conn *Connection) Close() {
	conn.shutdown(redis.WithAddress(
		redis.ErrConnClosed.New("connection closed"), conn.addr), true)
}

// Do runs one command and waits for its reply. ctx bounds the wait: on
// expiry the caller gets a timeout error while the command itself stays
// on the wire and its eventual reply is discarded without disturbing
// reply routing.
func (conn *Connection) Do(ctx context.Context, req redis.Request) (resp.Value, error) {
	buf, err := req.Append(nil)
	if err != nil {
		return resp.Value{}, err
	}
	fut := redis.NewChanFuture()
	if err := conn.submit(ctx, &batch{buf: buf, expected: 1, fut: fut}); err != nil {
		return resp.Value{}, err
	}
	select {
	case <-fut.Done():
		replies, err := fut.Get()
		if err != nil {
			return resp.Value{}, err
		}
		return replies[0], nil
	case <-ctx.Done():
		return resp.Value{}, conn.ctxError(ctx)
	}
}

// DoMany pipelines reqs as a single batch: the encoded commands hit the
// socket back-to-back and the replies come back as one vector in request
// order, delivered atomically even when other callers' traffic is
// interleaved on the wire. An empty batch completes immediately.
func (conn *Connection) DoMany(ctx context.Context, reqs []redis.Request) ([]resp.Value, error) {
	if len(reqs) == 0 {
		return []resp.Value{}, nil
	}
	b, err := makeBatch(reqs, nil, 0)
	if err != nil {
		return nil, err
	}
	fut := redis.NewChanFuture()
	b.fut = fut
	if err := conn.submit(ctx, b); err != nil {
		return nil, err
	}
	select {
	case <-fut.Done():
		return fut.Get()
	case <-ctx.Done():
		return nil, conn.ctxError(ctx)
	}
}

// Send is the callback-style submission: fut resolves with the single
// reply once it arrives, or with a fatal error. It never blocks longer
// than the request queue does.
func (conn *Connection) Send(req redis.Request, fut redis.Future, n uint64) {
	buf, err := req.Append(nil)
	if err != nil {
		fut.Resolve(nil, err, n)
		return
	}
	b := &batch{buf: buf, expected: 1, fut: fut, n: n}
	if err := conn.submit(conn.ctx, b); err != nil {
		b.resolve(nil, err)
	}
}

// SendMany submits reqs as one batch, callback-style.
func (conn *Connection) SendMany(reqs []redis.Request, fut redis.Future, n uint64) {
	if len(reqs) == 0 {
		fut.Resolve([]resp.Value{}, nil, n)
		return
	}
	b, err := makeBatch(reqs, fut, n)
	if err != nil {
		fut.Resolve(nil, err, n)
		return
	}
	if err := conn.submit(conn.ctx, b); err != nil {
		b.resolve(nil, err)
	}
}

// Ping checks liveness through the normal request path.
func (conn *Connection) Ping(ctx context.Context) error {
	v, err := conn.Do(ctx, redis.Req("PING"))
	if err != nil {
		return err
	}
	if v.IsError() {
		return redis.WithAddress(
			redis.ErrPing.New("ping rejected: %s", v.AsString()), conn.addr)
	}
	if s := v.AsString(); s != "PONG" {
		return redis.WithAddress(
			redis.ErrPing.New("ping answered %q", s), conn.addr)
	}
	return nil
}

func makeBatch(reqs []redis.Request, fut redis.Future, n uint64) (*batch, error) {
	var buf []byte
	var err error
	for _, req := range reqs {
		buf, err = req.Append(buf)
		if err != nil {
			return nil, err
		}
	}
	return &batch{buf: buf, expected: len(reqs), fut: fut, n: n}, nil
}

// submit enqueues the batch for the writer, honoring queue backpressure.
func (conn *Connection) submit(ctx context.Context, b *batch) error {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return conn.closedError()
	}
	conn.mu.Unlock()

	select {
	case conn.reqCh <- b:
	case <-ctx.Done():
		return conn.ctxError(ctx)
	case <-conn.ctx.Done():
		return conn.closedError()
	}

	// teardown may have drained the queue between the check and the
	// enqueue; the once-guard makes this resolve a no-op in every other
	// interleaving
	conn.mu.Lock()
	closed := conn.closed
	err := conn.closeErr
	conn.mu.Unlock()
	if closed {
		b.resolve(nil, err)
	}
	return nil
}

func (conn *Connection) closedError() error {
	return redis.WithAddress(
		redis.ErrConnClosed.New("connection to %s is closed", conn.addr), conn.addr)
}

func (conn *Connection) ctxError(ctx context.Context) error {
	err := ctx.Err()
	if err == context.DeadlineExceeded {
		return redis.WithAddress(redis.ErrRequestTimeout.Wrap(err, "request timed out"), conn.addr)
	}
	return redis.WithAddress(redis.ErrRequestTimeout.Wrap(err, "request cancelled"), conn.addr)
}

func (conn *Connection) report(event LogKind, v ...interface{}) {
	conn.opts.Logger.Report(event, conn, v...)
}

/********** IO goroutines **********/

// writer moves batches from the request queue to the socket. The
// completer enters the pending FIFO before its bytes are written, so the
// reader can always assume the FIFO head owns the next arriving reply.
func (conn *Connection) writer() {
	var wbuf []byte
	var local []*batch
	for {
		var b *batch
		select {
		case b = <-conn.reqCh:
		case <-conn.ctx.Done():
			return
		}

		local = append(local[:0], b)
		wbuf = append(wbuf[:0], b.buf...)
	coalesce:
		for len(wbuf) < writeCoalesceLimit {
			select {
			case nb := <-conn.reqCh:
				local = append(local, nb)
				wbuf = append(wbuf, nb.buf...)
			default:
				break coalesce
			}
		}

		conn.mu.Lock()
		if conn.closed {
			err := conn.closeErr
			conn.mu.Unlock()
			for _, lb := range local {
				lb.resolve(nil, err)
			}
			return
		}
		conn.pending = append(conn.pending, local...)
		conn.mu.Unlock()

		if err := conn.writeAll(wbuf); err != nil {
			conn.shutdown(redis.WithAddress(
				redis.ErrNetwork.Wrap(err, "socket write failed"), conn.addr), false)
			return
		}
	}
}

func (conn *Connection) writeAll(p []byte) error {
	for len(p) > 0 {
		if conn.opts.IOTimeout > 0 {
			conn.c.SetWriteDeadline(time.Now().Add(conn.opts.IOTimeout))
		}
		n, err := conn.c.Write(p)
		p = p[n:]
		if err != nil {
			return err
		}
	}
	return nil
}

// reader fills the ring buffer from the socket and drains complete
// frames, routing each to the FIFO head (or the push sink).
func (conn *Connection) reader() {
	for {
		span, err := conn.ring.WritableSpan(1)
		if err != nil {
			// frame exceeded the buffer safety cap
			conn.shutdown(err, false)
			return
		}

		if conn.opts.IOTimeout > 0 {
			if conn.hasPending() {
				conn.c.SetReadDeadline(time.Now().Add(conn.opts.IOTimeout))
			} else {
				conn.c.SetReadDeadline(time.Time{})
			}
		}
		n, rerr := conn.c.Read(span)
		if n > 0 {
			conn.ring.Produce(n)
			if ferr := conn.drain(); ferr != nil {
				conn.shutdown(ferr, false)
				return
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				conn.shutdown(redis.WithAddress(
					redis.ErrConnClosed.Wrap(rerr, "server closed the connection"), conn.addr), false)
			} else {
				conn.shutdown(redis.WithAddress(
					redis.ErrNetwork.Wrap(rerr, "socket read failed"), conn.addr), false)
			}
			return
		}
	}
}

// drain parses every complete frame currently buffered. Incomplete tail
// bytes stay in the ring for the next read. A framing error is fatal:
// once synchronization with the stream is lost there is no way back.
func (conn *Connection) drain() error {
	for {
		readable := conn.ring.Readable()
		if len(readable) == 0 {
			return nil
		}
		consumed, v, err := resp.Parse(readable)
		if err == resp.ErrIncomplete {
			return nil
		}
		if err != nil {
			return redis.WithAddress(
				redis.ErrParse.Wrap(err, "reply stream is unparseable"), conn.addr)
		}
		conn.ring.Consume(consumed)

		if v.IsPush() {
			conn.handlePush(v)
			continue
		}

		conn.mu.Lock()
		if len(conn.pending) == 0 {
			conn.mu.Unlock()
			return redis.WithAddress(
				redis.ErrParse.New("reply arrived with no request pending"), conn.addr)
		}
		head := conn.pending[0]
		head.replies = append(head.replies, v)
		var done *batch
		if len(head.replies) == head.expected {
			conn.pending = conn.pending[1:]
			done = head
		}
		conn.mu.Unlock()

		if done != nil {
			done.resolve(done.replies, nil)
		}
	}
}

// handlePush routes a server-initiated frame to the registered sink.
// Pushes never touch the pending FIFO.
func (conn *Connection) handlePush(v resp.Value) {
	if conn.opts.OnPush != nil {
		conn.opts.OnPush(v)
		return
	}
	conn.report(LogPushDropped, v)
}

func (conn *Connection) hasPending() bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return len(conn.pending) > 0
}

// shutdown is the single terminal transition. The cause fails the FIFO
// in order (head first) and then everything still sitting in the queue.
func (conn *Connection) shutdown(cause error, explicit bool) {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return
	}
	conn.closed = true
	conn.closeErr = cause
	pending := conn.pending
	conn.pending = nil
	conn.mu.Unlock()

	conn.cancel()
	if conn.c != nil {
		conn.c.Close()
	}

	for _, b := range pending {
		b.resolve(nil, cause)
	}
	for {
		select {
		case b := <-conn.reqCh:
			b.resolve(nil, cause)
		default:
			if explicit {
				conn.report(LogClosed)
			} else {
				conn.report(LogDisconnected, cause)
			}
			return
		}
	}
}

var _ redis.Executor = (*Connection)(nil)
