// Package ftp implements storage.Backend on an FTP server.
//
// Every exchange dials its own control connection, logs in, runs and quits;
// nothing is pooled or cached. Credentials from the settings are used when
// both user and password are set, otherwise the backend logs in anonymously.
// A context bounds connection establishment only: once a command is sent the
// backend waits for the reply or the transport timeout.
//
// Basic usage:
//
//	b, err := ftp.New(ftp.WithTimeout(10 * time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.LoadSettings(storage.Settings{BaseURL: "ftp://files.example.com/data"}); err != nil {
//	    log.Fatal(err)
//	}
//	page, err := b.List(ctx, "reports", 0, "")
package ftp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gonzalop/ftpstore/internal/ftpconn"
	"github.com/gonzalop/ftpstore/internal/ratelimit"
	"github.com/gonzalop/ftpstore/storage"
)

// TypeName identifies the backend.
const TypeName = "ftp"

const (
	defaultPort       = "21"
	anonymousUser     = "anonymous"
	anonymousPassword = "anonymous@"
)

// Backend is an FTP storage backend. It is safe for concurrent use once
// settings are loaded.
type Backend struct {
	mu       sync.RWMutex
	loaded   bool
	base     *url.URL
	settings storage.Settings

	timeout   time.Duration
	dialer    *net.Dialer
	logger    *slog.Logger
	metrics   MetricsCollector
	bandwidth int64
	limiter   *ratelimit.Limiter
}

var _ storage.Backend = (*Backend)(nil)

// New creates a backend without settings. Call LoadSettings before use.
func New(options ...Option) (*Backend, error) {
	b := &Backend{
		timeout: ftpconn.DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range options {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	b.limiter = ratelimit.New(b.bandwidth)
	return b, nil
}

// Open creates a backend and loads settings into it.
func Open(settings storage.Settings, options ...Option) (*Backend, error) {
	b, err := New(options...)
	if err != nil {
		return nil, err
	}
	if err := b.LoadSettings(settings); err != nil {
		return nil, err
	}
	return b, nil
}

// Type returns "ftp".
func (b *Backend) Type() string { return TypeName }

// LoadSettings validates and installs settings. The base URL must use the
// ftp scheme and name a host. Settings are immutable once loaded; a second
// call fails with storage.ErrInvalidConfig.
func (b *Backend) LoadSettings(settings storage.Settings) error {
	u, err := settings.Validate()
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.Scheme, "ftp") {
		return storage.NewError(storage.ErrInvalidConfig, opLoadSettings, "",
			fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return storage.NewError(storage.ErrInvalidConfig, opLoadSettings, "",
			errors.New("base_url has no host"))
	}
	u.Scheme = "ftp"
	if u.Path == "" {
		u.Path = "/"
	}
	// Credentials travel in Settings only; never echo them in locations.
	u.User = nil

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return storage.NewError(storage.ErrInvalidConfig, opLoadSettings, "",
			errors.New("settings already loaded"))
	}
	b.base = u
	b.settings = settings
	b.loaded = true

	b.logger.Debug("ftp backend configured",
		"base_url", u.String(),
		"anonymous", !settings.HasCredentials(),
	)
	return nil
}

// CanConnect dials, logs in and sends NOOP.
func (b *Backend) CanConnect(ctx context.Context) bool {
	base, err := b.baseURL(opCanConnect)
	if err != nil {
		return false
	}
	err = b.exchange(ctx, base, func(c *ftpconn.Conn) error {
		return c.Noop()
	})
	if err != nil {
		b.logger.Warn("ftp server unreachable", "addr", base.Host, "error", err)
		return false
	}
	return true
}

func (b *Backend) baseURL(op string) (*url.URL, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.loaded {
		return nil, storage.NewError(storage.ErrInvalidConfig, op, "", errors.New("settings not loaded"))
	}
	return b.base, nil
}

func (b *Backend) credentials() (string, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.settings.HasCredentials() {
		return b.settings.User, b.settings.Password
	}
	return anonymousUser, anonymousPassword
}

// connect dials the server of loc and logs in.
func (b *Backend) connect(ctx context.Context, loc *url.URL) (*ftpconn.Conn, error) {
	port := loc.Port()
	if port == "" {
		port = defaultPort
	}
	addr := net.JoinHostPort(loc.Hostname(), port)

	options := []ftpconn.Option{
		ftpconn.WithTimeout(b.timeout),
		ftpconn.WithLogger(b.logger),
		ftpconn.WithLimiter(b.limiter),
	}
	if b.dialer != nil {
		options = append(options, ftpconn.WithDialer(b.dialer))
	}

	c, err := ftpconn.Dial(ctx, addr, options...)
	if err != nil {
		b.recordConnection("dial_failed")
		return nil, err
	}

	user, password := b.credentials()
	if err := c.Login(user, password); err != nil {
		b.recordConnection("login_failed")
		if qerr := c.Quit(); qerr != nil {
			b.logger.Debug("quit after failed login", "error", qerr)
		}
		return nil, err
	}
	b.recordConnection("ok")
	return c, nil
}

// exchange runs fn on its own logged-in connection and always releases it.
func (b *Backend) exchange(ctx context.Context, loc *url.URL, fn func(c *ftpconn.Conn) error) error {
	c, err := b.connect(ctx, loc)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Quit(); err != nil {
			b.logger.Debug("quit failed", "error", err)
		}
	}()
	return fn(c)
}

// track records the outcome of a public operation. Use with a named error
// result: defer b.track(op, time.Now(), &err).
func (b *Backend) track(op string, start time.Time, errp *error) {
	duration := time.Since(start)
	var err error
	if errp != nil {
		err = *errp
	}

	kind := ""
	if err != nil {
		if k := storage.KindOf(err); k != nil {
			kind = k.Error()
		} else {
			kind = storage.ErrTransportFailure.Error()
		}
		b.logger.Debug("ftp operation failed", "op", op, "kind", kind, "duration", duration, "error", err)
	} else {
		b.logger.Debug("ftp operation done", "op", op, "duration", duration)
	}
	if b.metrics != nil {
		b.metrics.RecordOperation(op, kind, duration)
	}
}

func (b *Backend) recordConnection(result string) {
	if b.metrics != nil {
		b.metrics.RecordConnection(result)
	}
}

func (b *Backend) recordTransfer(direction string, n int64, start time.Time) {
	if b.metrics != nil {
		b.metrics.RecordTransfer(direction, n, time.Since(start))
	}
}

// Operation names used in errors, logs and metrics.
const (
	opLoadSettings    = "load_settings"
	opCanConnect      = "can_connect"
	opExists          = "exists"
	opList            = "list"
	opCreateDirectory = "create_directory"
	opUpload          = "upload"
	opDownload        = "download"
	opMove            = "move"
	opDelete          = "delete"
	opLookup          = "lookup"
)
