package ftpconn

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Response is one reply read from the control channel.
type Response struct {
	// Code is the three-digit reply code.
	Code int

	// Message is the reply text without the code prefixes.
	Message string

	// Lines holds every raw line of a multi-line reply.
	Lines []string
}

// Is1xx reports a positive preliminary reply.
func (r *Response) Is1xx() bool { return r.Code >= 100 && r.Code < 200 }

// Is2xx reports a positive completion reply.
func (r *Response) Is2xx() bool { return r.Code >= 200 && r.Code < 300 }

func (r *Response) String() string {
	return strings.Join(r.Lines, "\n")
}

// readResponse reads one complete reply.
//
// Single-line:  "220 Welcome\r\n"
// Multi-line:   "220-Welcome\r\n" ... "220 Ready\r\n"
//
// A multi-line reply ends at the first line carrying the same code followed
// by a space.
func readResponse(r *bufio.Reader) (*Response, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 4 {
		return nil, fmt.Errorf("invalid response line: %q", line)
	}

	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return nil, fmt.Errorf("invalid response code: %q", line[:3])
	}

	switch line[3] {
	case ' ':
		return &Response{Code: code, Message: line[4:], Lines: []string{line}}, nil
	case '-':
	default:
		return nil, fmt.Errorf("invalid response format: %q", line)
	}

	lines := []string{line}
	if err := readContinuation(r, line[:3], &lines); err != nil {
		return nil, err
	}

	msg := make([]string, 0, len(lines))
	for _, l := range lines {
		if len(l) >= 4 && l[:3] == line[:3] && (l[3] == ' ' || l[3] == '-') {
			msg = append(msg, l[4:])
		} else {
			msg = append(msg, strings.TrimSpace(l))
		}
	}
	return &Response{Code: code, Message: strings.Join(msg, "\n"), Lines: lines}, nil
}

func readContinuation(r *bufio.Reader, code string, lines *[]string) error {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("unexpected EOF reading response")
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		// RFC 2389 style continuation lines start with a space.
		if strings.HasPrefix(line, " ") {
			*lines = append(*lines, line)
			continue
		}
		if len(line) < 4 || line[:3] != code {
			// Servers may emit free text inside a multi-line reply.
			*lines = append(*lines, line)
			continue
		}

		*lines = append(*lines, line)
		if line[3] == ' ' {
			return nil
		}
	}
}

// cmd sends a command and reads its reply.
func (c *Conn) cmd(command string, args ...string) (*Response, error) {
	line := command
	if len(args) > 0 {
		line = command + " " + strings.Join(args, " ")
	}

	if command == "PASS" {
		c.logger.Debug("ftp command", "cmd", "PASS ***")
	} else {
		c.logger.Debug("ftp command", "cmd", line)
	}

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", line); err != nil {
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	resp, err := c.readReply()
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", command, err)
	}
	return resp, nil
}

// readReply reads the next reply under the read deadline.
func (c *Conn) readReply() (*Response, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}
	resp, err := readResponse(c.reader)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("ftp response", "code", resp.Code, "message", resp.Message)
	return resp, nil
}

// expectCode sends a command and requires the given reply code.
func (c *Conn) expectCode(want int, command string, args ...string) (*Response, error) {
	resp, err := c.cmd(command, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != want {
		return resp, newProtocolError(command, resp)
	}
	return resp, nil
}

// expect2xx sends a command and requires a positive completion reply.
func (c *Conn) expect2xx(command string, args ...string) (*Response, error) {
	resp, err := c.cmd(command, args...)
	if err != nil {
		return nil, err
	}
	if !resp.Is2xx() {
		return resp, newProtocolError(command, resp)
	}
	return resp, nil
}
