package ftpconn

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gonzalop/ftpstore/internal/ratelimit"
)

// Option configures a Conn at dial time.
type Option func(*Conn) error

// WithTimeout sets the dial timeout and the per-operation read/write
// deadline on both channels. Zero disables deadlines.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Conn) error {
		if timeout < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = timeout
		return nil
	}
}

// WithLogger logs every command and reply at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithDialer sets the dialer used for control and data connections.
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Conn) error {
		if dialer == nil {
			return errors.New("dialer must not be nil")
		}
		d := *dialer
		c.dialer = &d
		return nil
	}
}

// WithLimiter throttles the data channel. A nil limiter means unlimited.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Conn) error {
		c.limiter = l
		return nil
	}
}
