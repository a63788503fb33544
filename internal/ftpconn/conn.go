// Package ftpconn speaks the FTP control and data protocol for a single
// short-lived session.
//
// A Conn is owned by one operation: it is dialed, logged in, used for one or a
// few exchanges and closed with Quit. It is not safe for concurrent use.
// Only passive mode (EPSV, falling back to PASV) and binary transfers are
// supported.
package ftpconn

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.uber.org/multierr"

	"github.com/gonzalop/ftpstore/internal/ratelimit"
)

// DefaultTimeout bounds dialing and every read or write on the control and
// data channels.
const DefaultTimeout = 30 * time.Second

// Conn is an open control connection.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader

	// host is the control connection host, used for EPSV and for
	// PASV replies advertising 0.0.0.0.
	host string

	timeout time.Duration
	dialer  *net.Dialer
	logger  *slog.Logger
	limiter *ratelimit.Limiter

	// disableEPSV is set after the server rejects EPSV as not implemented.
	disableEPSV bool

	// transferType caches the last TYPE sent.
	transferType string
}

// Dial connects to addr ("host:port") and reads the 220 greeting.
// ctx bounds connection establishment only.
func Dial(ctx context.Context, addr string, options ...Option) (*Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	c := &Conn{
		host:    host,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{}
	}
	if c.dialer.Timeout == 0 {
		c.dialer.Timeout = c.timeout
	}

	c.logger.Debug("connecting to ftp server", "addr", addr)
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)

	resp, err := c.readReply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	if resp.Code != 220 {
		conn.Close()
		return nil, newProtocolError("CONNECT", resp)
	}
	return c, nil
}

// Login authenticates with USER and, when asked for, PASS.
func (c *Conn) Login(user, password string) error {
	resp, err := c.cmd("USER", user)
	if err != nil {
		return err
	}
	switch resp.Code {
	case 230:
		return nil
	case 331:
	default:
		return newProtocolError("USER", resp)
	}
	_, err = c.expectCode(230, "PASS", password)
	return err
}

// Noop sends NOOP.
func (c *Conn) Noop() error {
	_, err := c.expect2xx("NOOP")
	return err
}

// Quit sends QUIT and closes the control connection. It is safe to call on
// a nil or already closed Conn.
func (c *Conn) Quit() error {
	if c == nil || c.conn == nil {
		return nil
	}
	// The server may already have dropped us; the socket is closed regardless.
	_, quitErr := c.cmd("QUIT")
	closeErr := c.conn.Close()
	c.conn = nil
	return multierr.Combine(quitErr, closeErr)
}

// deadlineConn refreshes the read/write deadline before every operation.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
