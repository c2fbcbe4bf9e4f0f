package redis

import (
	"github.com/joomcode/errorx"
)

// Error taxonomy. Server-level "-ERR ..." frames are never Go errors:
// they come back as resp.Value with KindError so one failing sub-command
// cannot abort a pipeline. Everything below concerns the client itself.
var (
	// Errors is the root namespace of the library.
	Errors = errorx.NewNamespace("rediskit")

	// ErrRequest covers malformed caller input. Fix the input; retrying
	// does not help.
	ErrRequest = Errors.NewSubNamespace("request")
	// ErrConnection covers the connection lifecycle and transport.
	ErrConnection = Errors.NewSubNamespace("connection")
	// ErrProtocol covers a broken RESP stream. Fatal for the connection.
	ErrProtocol = Errors.NewSubNamespace("protocol")

	ErrURLInvalid     = ErrRequest.NewType("url_invalid")
	ErrHostInvalid    = ErrRequest.NewType("host_invalid")
	ErrPortInvalid    = ErrRequest.NewType("port_invalid")
	ErrDbIndexInvalid = ErrRequest.NewType("db_index_invalid")
	ErrAddressInvalid = ErrRequest.NewType("address_invalid")
	ErrCommand        = ErrRequest.NewType("command_malformed")

	ErrNetwork        = ErrConnection.NewType("network", errorx.Temporary())
	ErrConnClosed     = ErrConnection.NewType("closed")
	ErrRequestTimeout = ErrConnection.NewType("timeout", errorx.Timeout())
	ErrAuth           = ErrConnection.NewType("auth")

	ErrParse          = ErrProtocol.NewType("parse")
	ErrBufferOverflow = ErrProtocol.NewType("buffer_overflow")
	// ErrPing means the server is reachable yet answered PING with
	// something other than PONG.
	ErrPing = ErrProtocol.NewType("ping")

	// ErrInternal marks invariant violations, i.e. bugs worth reporting.
	ErrInternal = Errors.NewType("internal")
)

// Properties attached to returned errors for diagnostics.
var (
	// EKConnection holds the connection that handled the request.
	EKConnection = errorx.RegisterProperty("connection")
	// EKAddress holds the server address involved.
	EKAddress = errorx.RegisterProperty("address")
	// EKDb holds the database index a SELECT failed for.
	EKDb = errorx.RegisterProperty("db")
)

func withNewProperty(err *errorx.Error, p errorx.Property, v interface{}) *errorx.Error {
	if _, ok := err.Property(p); ok {
		return err
	}
	return err.WithProperty(p, v)
}

// WithConnection annotates err with the connection it happened on,
// keeping an already-present annotation.
func WithConnection(err *errorx.Error, conn interface{}) *errorx.Error {
	return withNewProperty(err, EKConnection, conn)
}

// WithAddress annotates err with a server address.
func WithAddress(err *errorx.Error, addr string) *errorx.Error {
	return withNewProperty(err, EKAddress, addr)
}
