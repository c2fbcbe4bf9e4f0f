package redisconn

import (
	"github.com/sirupsen/logrus"
)

// LogKind enumerates connection events reported to the Logger.
type LogKind int

const (
	LogConnecting LogKind = iota
	LogConnected
	LogConnectFailed
	LogDisconnected
	LogClosed
	LogPushDropped
	LogMAX
)

// Logger is the hook for connection lifecycle events.
type Logger interface {
	Report(event LogKind, conn *Connection, v ...interface{})
}

type defaultLogger struct {
	log *logrus.Logger
}

func (d defaultLogger) Report(event LogKind, conn *Connection, v ...interface{}) {
	l := d.log
	if l == nil {
		l = logrus.StandardLogger()
	}
	e := l.WithField("addr", conn.Addr())
	switch event {
	case LogConnecting:
		e.Debug("redis: connecting")
	case LogConnected:
		e.WithFields(logrus.Fields{
			"local_addr":  v[0].(string),
			"remote_addr": v[1].(string),
		}).Info("redis: connected")
	case LogConnectFailed:
		e.WithError(v[0].(error)).Warn("redis: connection failed")
	case LogDisconnected:
		e.WithError(v[0].(error)).Warn("redis: connection broken")
	case LogClosed:
		e.Info("redis: connection closed")
	case LogPushDropped:
		e.WithField("push", v[0]).Debug("redis: push frame dropped, no sink registered")
	default:
		e.WithField("event", event).Warn("redis: unexpected event")
	}
}
