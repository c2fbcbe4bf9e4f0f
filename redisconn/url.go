package redisconn

import (
	"net"
	"strconv"
	"strings"

	"github.com/joomcode/rediskit/redis"
)

// DefaultPort is the port used when the URL names none.
const DefaultPort = 6379

// Target is the result of parsing a redis:// URL.
type Target struct {
	Addr     string // host:port, ready for Connect
	Username string
	Password string
	DB       int
}

// ParseURL parses redis://[user[:pass]@]host[:port][/db].
//
// Missing port defaults to 6379, missing db to 0. "localhost" is
// normalized to 127.0.0.1. IPv6 literals use the usual bracket form:
// redis://[::1]:6379/2.
func ParseURL(rawurl string) (Target, error) {
	var t Target
	rest, ok := strings.CutPrefix(rawurl, "redis://")
	if !ok {
		return t, redis.ErrURLInvalid.New("url %q does not start with redis://", rawurl)
	}
	if rest == "" {
		return t, redis.ErrURLInvalid.New("url %q has no host", rawurl)
	}

	// credentials
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		cred := rest[:at]
		rest = rest[at+1:]
		if user, pass, found := strings.Cut(cred, ":"); found {
			t.Username, t.Password = user, pass
		} else {
			t.Username = cred
		}
	}

	// path = db index
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		dbstr := rest[slash+1:]
		rest = rest[:slash]
		if dbstr != "" {
			db, err := strconv.Atoi(dbstr)
			if err != nil || db < 0 {
				return t, redis.ErrDbIndexInvalid.New("db index %q is not a non-negative integer", dbstr)
			}
			t.DB = db
		}
	}

	host, portstr, err := splitHostPort(rest)
	if err != nil {
		return t, err
	}
	if host == "" {
		return t, redis.ErrHostInvalid.New("url %q has empty host", rawurl)
	}
	if host == "localhost" {
		host = "127.0.0.1"
	}
	port := DefaultPort
	if portstr != "" {
		port, err = strconv.Atoi(portstr)
		if err != nil || port <= 0 || port > 65535 {
			return t, redis.ErrPortInvalid.New("port %q is not in 1..65535", portstr)
		}
	}
	t.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	return t, nil
}

func splitHostPort(hostport string) (host, port string, err error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", "", redis.ErrAddressInvalid.New("unterminated IPv6 literal in %q", hostport)
		}
		host = hostport[1:end]
		rest := hostport[end+1:]
		if rest == "" {
			return host, "", nil
		}
		if rest[0] != ':' {
			return "", "", redis.ErrAddressInvalid.New("garbage after IPv6 literal in %q", hostport)
		}
		return host, rest[1:], nil
	}
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 {
		if strings.IndexByte(hostport[:i], ':') >= 0 {
			// bare IPv6 without brackets is ambiguous
			return "", "", redis.ErrAddressInvalid.New("IPv6 literal %q needs brackets", hostport)
		}
		return hostport[:i], hostport[i+1:], nil
	}
	return hostport, "", nil
}
