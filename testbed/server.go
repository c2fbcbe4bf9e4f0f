// Package testbed runs an in-process RESP server for tests. Unlike a
// real server it is fully scriptable: the handler sees each decoded
// command and answers with raw bytes, so tests can produce pipelined
// replies, protocol garbage, or silence on demand.
package testbed

import (
	"net"
	"sync"

	"github.com/joomcode/rediskit/resp"
)

// Handler answers one decoded command with raw wire bytes. Returning nil
// sends nothing, which is how tests simulate a stuck server. Handlers
// run sequentially per connection, so replies keep arrival order.
type Handler func(conn net.Conn, cmd [][]byte) []byte

// Server is one listening socket with a swappable handler.
type Server struct {
	lis net.Listener

	mu      sync.Mutex
	handler Handler
	conns   map[net.Conn]struct{}
	closed  bool
}

// Start listens on a free localhost port. A nil handler means
// DefaultHandler.
func Start(handler Handler) (*Server, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if handler == nil {
		handler = DefaultHandler
	}
	s := &Server{
		lis:     lis,
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr is the host:port to dial.
func (s *Server) Addr() string { return s.lis.Addr().String() }

// SetHandler swaps the handler for subsequent commands.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Stop closes the listener and every live connection.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.lis.Close()
	for _, c := range conns {
		c.Close()
	}
}

// DropConnections closes live connections but keeps listening, which
// looks like a server restart to clients.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) acceptLoop() {
	for {
		c, err := s.lis.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			c.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go s.serve(c)
	}
}

func (s *Server) serve(c net.Conn) {
	defer func() {
		c.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		for len(buf) > 0 {
			consumed, v, err := resp.Parse(buf)
			if err == resp.ErrIncomplete {
				break
			}
			if err != nil {
				return
			}
			buf = buf[consumed:]
			cmd := commandParts(v)
			if cmd == nil {
				return
			}
			s.mu.Lock()
			h := s.handler
			s.mu.Unlock()
			if reply := h(c, cmd); len(reply) > 0 {
				if _, err := c.Write(reply); err != nil {
					return
				}
			}
		}
		n, err := c.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return
		}
	}
}

func commandParts(v resp.Value) [][]byte {
	arr := v.AsArray()
	if len(arr) == 0 {
		return nil
	}
	parts := make([][]byte, len(arr))
	for i, el := range arr {
		parts[i] = el.AsBytes()
	}
	return parts
}

// DefaultHandler speaks enough Redis for handshakes and smoke tests.
func DefaultHandler(_ net.Conn, cmd [][]byte) []byte {
	switch string(cmd[0]) {
	case "PING", "ping":
		return []byte("+PONG\r\n")
	case "ECHO", "echo":
		if len(cmd) > 1 {
			return resp.AppendValue(nil, resp.Bulk(cmd[1]))
		}
		return []byte("-ERR wrong number of arguments\r\n")
	case "AUTH", "auth", "SELECT", "select", "SET", "set", "FLUSHDB", "flushdb":
		return []byte("+OK\r\n")
	case "HELLO", "hello":
		return resp.AppendValue(nil, resp.Map(
			resp.Pair{Key: resp.BulkString("server"), Value: resp.BulkString("testbed")},
			resp.Pair{Key: resp.BulkString("proto"), Value: resp.Int(3)},
		))
	case "GET", "get":
		return []byte("$-1\r\n")
	default:
		return []byte("-ERR unknown command\r\n")
	}
}
