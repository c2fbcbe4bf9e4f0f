package redis

import (
	"github.com/joomcode/rediskit/resp"
)

// Request is one command with its arguments. Args are converted to bulk
// strings by resp.AppendRequest; see it for the accepted types.
type Request struct {
	Cmd  string
	Args []interface{}
}

// Req is a shortcut constructor:
//
//	conn.Do(ctx, redis.Req("SET", "key", "value"))
func Req(cmd string, args ...interface{}) Request {
	return Request{cmd, args}
}

// Append encodes the request onto buf. A conversion failure comes back
// as ErrCommand.
func (r Request) Append(buf []byte) ([]byte, error) {
	out, err := resp.AppendRequest(buf, r.Cmd, r.Args)
	if err != nil {
		return buf, ErrCommand.Wrap(err, "could not encode %q", r.Cmd)
	}
	return out, nil
}

func (r Request) String() string {
	return "Req(" + r.Cmd + ")"
}
