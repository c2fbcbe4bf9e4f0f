package redispool

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joomcode/rediskit/redis"
	"github.com/joomcode/rediskit/redisconn"
)

// Config describes a pool. Zero values pick the documented defaults;
// Min/Initial/Max must satisfy Min <= Initial <= Max and Max >= 1.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	// RespVersion is 2 or 3 for every pooled session; zero means 2.
	RespVersion int

	// Sizing. Defaults: Min 2, Max 10, Initial = Min.
	Min     int
	Max     int
	Initial int

	// AcquireTimeout bounds how long Acquire waits for a free session.
	// Default 5s.
	AcquireTimeout time.Duration
	// IdleTimeout is how long an unused session may sit idle before
	// cleanup evicts it (never below Min). Default 5m.
	IdleTimeout time.Duration

	// HealthCheckEnabled starts a background prober on Initialize.
	HealthCheckEnabled bool
	// HealthInterval paces the background prober. Default 30s.
	HealthInterval time.Duration
	// ValidateOnAcquire pings an idle session before handing it out.
	ValidateOnAcquire bool
	// ValidateOnReturn pings a session before pooling it again.
	ValidateOnReturn bool
	// ProbeTimeout bounds a single validation ping. Default 1s.
	ProbeTimeout time.Duration

	// MaxReconnectAttempts bounds replacement creation per health-check
	// round when the pool is below Min. Default 3.
	MaxReconnectAttempts int

	// ConnOpts is the template for the underlying sessions. Credentials,
	// DB and RespVersion above take precedence.
	ConnOpts redisconn.Opts

	// Logger for pool events; nil uses the logrus standard logger.
	Logger *logrus.Logger
}

// Validate checks the sizing constraints.
func (c Config) Validate() error {
	d := c.withDefaults()
	if d.Max < 1 {
		return redis.ErrCommand.New("pool max must be at least 1, got %d", d.Max)
	}
	if d.Min < 0 {
		return redis.ErrCommand.New("pool min must not be negative, got %d", d.Min)
	}
	if d.Min > d.Initial || d.Initial > d.Max {
		return redis.ErrCommand.New(
			"pool sizing must satisfy min <= initial <= max, got %d/%d/%d",
			d.Min, d.Initial, d.Max)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Max == 0 {
		c.Max = 10
	}
	if c.Min == 0 {
		c.Min = 2
	}
	if c.Initial == 0 {
		c.Initial = c.Min
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 3
	}
	return c
}

func (c Config) connOpts() redisconn.Opts {
	opts := c.ConnOpts
	opts.Username = c.Username
	opts.Password = c.Password
	opts.DB = c.DB
	opts.RespVersion = c.RespVersion
	return opts
}
