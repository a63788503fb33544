// Package ftptest runs an in-process FTP server over an in-memory
// filesystem for tests.
//
// The server implements the subset of RFC 959/3659 the storage backends use:
// USER, PASS, QUIT, NOOP, TYPE, CWD, PWD, EPSV, PASV, LIST, SIZE, MDTM, MKD,
// DELE, RNFR, RNTO, ALLO, STOR and RETR. It can require credentials, count
// received commands and stall on chosen commands to provoke client timeouts.
package ftptest

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

// Server is a running test FTP server.
type Server struct {
	fs       afero.Fs
	ln       net.Listener
	logger   *slog.Logger
	user     string
	password string
	noEPSV   bool
	stall    map[string]bool

	mu     sync.Mutex
	counts map[string]int
	logins []string
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithFs serves fs instead of a fresh afero.MemMapFs.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) { s.fs = fs }
}

// WithCredentials accepts only user/password; every other login gets 530.
// Without it any login succeeds.
func WithCredentials(user, password string) Option {
	return func(s *Server) {
		s.user = user
		s.password = password
	}
}

// WithStall makes the server read but never answer the given commands.
func WithStall(commands ...string) Option {
	return func(s *Server) {
		for _, c := range commands {
			s.stall[strings.ToUpper(c)] = true
		}
	}
}

// WithoutEPSV answers EPSV with 502 so clients fall back to PASV.
func WithoutEPSV() Option {
	return func(s *Server) { s.noEPSV = true }
}

// WithLogger logs sessions and commands.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New starts a server on a loopback port. It is closed by t.Cleanup.
func New(t testing.TB, options ...Option) *Server {
	t.Helper()
	s, err := Start(options...)
	if err != nil {
		t.Fatalf("ftptest: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Start starts a server on a loopback port. The caller must Close it.
func Start(options ...Option) (*Server, error) {
	s := &Server{
		fs:     afero.NewMemMapFs(),
		logger: slog.New(slog.DiscardHandler),
		stall:  make(map[string]bool),
		counts: make(map[string]int),
		conns:  make(map[net.Conn]struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr returns the "host:port" the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL returns an ftp:// URL for p on this server.
func (s *Server) URL(p string) string {
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "ftp://" + s.Addr() + p
}

// Fs returns the filesystem the server serves.
func (s *Server) Fs() afero.Fs {
	return s.fs
}

// Count returns how many times command was received.
func (s *Server) Count(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[strings.ToUpper(command)]
}

// Total returns the number of commands received.
func (s *Server) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

// Logins returns the user names of successful logins, oldest first.
func (s *Server) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logins...)
}

// ResetCounts clears the command counters.
func (s *Server) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.counts)
	s.logins = nil
}

// Close stops accepting, drops live sessions and waits for them to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", "error", err)
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			newSession(s, conn).serve()
		}()
	}
}

func (s *Server) record(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[command]++
}

func (s *Server) authenticate(user, password string) bool {
	ok := (s.user == "" && s.password == "") || (user == s.user && password == s.password)
	if ok {
		s.mu.Lock()
		s.logins = append(s.logins, user)
		s.mu.Unlock()
	}
	return ok
}

// session is one control connection.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader

	user       string
	loggedIn   bool
	cwd        string
	renameFrom string
	pasv       net.Listener
}

func newSession(s *Server, conn net.Conn) *session {
	return &session{
		server: s,
		conn:   conn,
		reader: bufio.NewReader(conn),
		cwd:    "/",
	}
}

func (ss *session) serve() {
	defer func() {
		if ss.pasv != nil {
			ss.pasv.Close()
		}
	}()

	ss.reply(220, "ftptest ready.")
	for {
		line, err := ss.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)
		ss.server.record(cmd)

		logArg := arg
		if cmd == "PASS" {
			logArg = "***"
		}
		ss.server.logger.Debug("command received", "cmd", cmd, "arg", logArg)

		if ss.server.stall[cmd] {
			continue
		}
		if !ss.handle(cmd, arg) {
			return
		}
	}
}

func (ss *session) reply(code int, message string) {
	fmt.Fprintf(ss.conn, "%d %s\r\n", code, message)
}
