package redis

import (
	"sync"

	"github.com/joomcode/rediskit/resp"
)

// Future receives the outcome of one submitted batch: either the ordered
// replies to every command in the batch, or a single fatal error. Resolve
// is called exactly once: from the session's reader goroutine, from
// connection teardown, or from the submitting call itself when the
// request cannot be encoded or enqueued.
type Future interface {
	Resolve(replies []resp.Value, err error, n uint64)
}

// FuncFuture adapts a plain function to Future.
type FuncFuture func(replies []resp.Value, err error, n uint64)

func (f FuncFuture) Resolve(replies []resp.Value, err error, n uint64) { f(replies, err, n) }

// ChanFuture is a Future whose completion can be awaited on a channel.
type ChanFuture struct {
	replies []resp.Value
	err     error
	once    sync.Once
	wait    chan struct{}
}

// NewChanFuture returns a future ready to be passed to Send.
func NewChanFuture() *ChanFuture {
	return &ChanFuture{wait: make(chan struct{})}
}

// Done is closed once the future resolves.
func (f *ChanFuture) Done() <-chan struct{} { return f.wait }

// Value blocks until resolution and returns the outcome.
func (f *ChanFuture) Value() ([]resp.Value, error) {
	<-f.wait
	return f.replies, f.err
}

// Get returns the outcome without blocking; only valid after Done.
func (f *ChanFuture) Get() ([]resp.Value, error) {
	return f.replies, f.err
}

func (f *ChanFuture) Resolve(replies []resp.Value, err error, _ uint64) {
	f.once.Do(func() {
		f.replies = replies
		f.err = err
		close(f.wait)
	})
}
