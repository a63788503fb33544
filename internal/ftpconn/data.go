package ftpconn

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

var (
	// pasvRegex matches "227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)".
	pasvRegex = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

	// epsvRegex matches "229 Entering Extended Passive Mode (|||port|)".
	epsvRegex = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

// parsePASV returns the "host:port" encoded in a PASV reply.
func parsePASV(reply string) (string, error) {
	m := pasvRegex.FindStringSubmatch(reply)
	if len(m) != 7 {
		return "", fmt.Errorf("invalid PASV response: %s", reply)
	}

	var octets [6]int
	for i := range octets {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v < 0 || v > 255 {
			return "", fmt.Errorf("invalid PASV field: %s", m[i+1])
		}
		octets[i] = v
	}
	host := fmt.Sprintf("%d.%d.%d.%d", octets[0], octets[1], octets[2], octets[3])
	port := octets[4]*256 + octets[5]
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// parseEPSV returns the port encoded in an EPSV reply.
func parseEPSV(reply string) (string, error) {
	m := epsvRegex.FindStringSubmatch(reply)
	if len(m) != 2 {
		return "", fmt.Errorf("invalid EPSV response: %s", reply)
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", m[1])
	}
	return m[1], nil
}

// resolveDataAddr replaces an unroutable 0.0.0.0 PASV host with the
// control connection host.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}
	if host == "0.0.0.0" {
		return net.JoinHostPort(controlHost, port)
	}
	return pasvAddr
}

// openDataConn negotiates a passive data connection, trying EPSV first.
func (c *Conn) openDataConn() (net.Conn, error) {
	var addr string

	if !c.disableEPSV {
		resp, err := c.cmd("EPSV")
		if err != nil {
			return nil, err
		}
		switch {
		case resp.Is2xx():
			if port, err := parseEPSV(resp.String()); err == nil {
				addr = net.JoinHostPort(c.host, port)
			}
		case resp.Code == 500 || resp.Code == 502:
			c.disableEPSV = true
		}
	}

	if addr == "" {
		resp, err := c.cmd("PASV")
		if err != nil {
			return nil, err
		}
		if !resp.Is2xx() {
			return nil, newProtocolError("PASV", resp)
		}
		pasvAddr, err := parsePASV(resp.String())
		if err != nil {
			return nil, err
		}
		addr = resolveDataAddr(pasvAddr, c.host)
	}

	dataConn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to data port: %w", err)
	}
	if c.timeout > 0 {
		return &deadlineConn{Conn: dataConn, timeout: c.timeout}, nil
	}
	return dataConn, nil
}

// transfer is an open data connection for one transfer command.
type transfer struct {
	net.Conn
	command string

	// completed is set when the server sent the completion reply up
	// front instead of a 1xx preliminary reply.
	completed bool
}

// startTransfer opens a data connection and issues a transfer command on it.
// On success the caller owns the transfer and must pass it to finish.
func (c *Conn) startTransfer(command string, args ...string) (*transfer, error) {
	dataConn, err := c.openDataConn()
	if err != nil {
		return nil, err
	}

	resp, err := c.cmd(command, args...)
	if err != nil {
		dataConn.Close()
		return nil, err
	}
	if !resp.Is1xx() && !resp.Is2xx() {
		dataConn.Close()
		return nil, newProtocolError(command, resp)
	}
	return &transfer{Conn: dataConn, command: command, completed: resp.Is2xx()}, nil
}

// finish closes the data connection and reads the completion reply.
func (c *Conn) finish(t *transfer) error {
	if err := t.Close(); err != nil {
		c.logger.Debug("close data connection", "error", err)
	}
	if t.completed {
		return nil
	}
	resp, err := c.readReply()
	if err != nil {
		return fmt.Errorf("read %s completion: %w", t.command, err)
	}
	if !resp.Is2xx() {
		return newProtocolError(t.command, resp)
	}
	return nil
}
