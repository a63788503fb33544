package ftp

import (
	"errors"
	"log/slog"
	"net"
	"time"
)

// Option configures a Backend.
type Option func(*Backend) error

// WithTimeout bounds dialing and each read or write on the control and data
// connections. The default is ftpconn.DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Backend) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		b.timeout = timeout
		return nil
	}
}

// WithDialer sets the dialer for control and data connections.
func WithDialer(dialer *net.Dialer) Option {
	return func(b *Backend) error {
		if dialer == nil {
			return errors.New("dialer must not be nil")
		}
		b.dialer = dialer
		return nil
	}
}

// WithLogger sets the logger. Protocol traffic is logged at debug level
// with passwords redacted.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	}
}

// WithMetrics reports operations, transfers and connections to m.
func WithMetrics(m MetricsCollector) Option {
	return func(b *Backend) error {
		b.metrics = m
		return nil
	}
}

// WithBandwidthLimit caps data transfer speed in bytes per second.
// Zero means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(b *Backend) error {
		if bytesPerSecond < 0 {
			return errors.New("bandwidth limit must not be negative")
		}
		b.bandwidth = bytesPerSecond
		return nil
	}
}
