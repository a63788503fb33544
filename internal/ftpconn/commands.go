package ftpconn

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gonzalop/ftpstore/internal/ratelimit"
)

// mdtmLayout is the RFC 3659 time-val format, always UTC.
const mdtmLayout = "20060102150405"

// Type sets the transfer type ("A" or "I"), skipping redundant commands.
func (c *Conn) Type(transferType string) error {
	if c.transferType == transferType {
		return nil
	}
	if _, err := c.expectCode(200, "TYPE", transferType); err != nil {
		return err
	}
	c.transferType = transferType
	return nil
}

// ChangeDir sends CWD.
func (c *Conn) ChangeDir(path string) error {
	_, err := c.expect2xx("CWD", path)
	return err
}

// List sends LIST and returns the raw listing lines in server order.
// Blank lines are dropped; nothing else is interpreted.
func (c *Conn) List(path string) ([]string, error) {
	args := []string{}
	if path != "" {
		args = append(args, path)
	}
	t, err := c.startTransfer("LIST", args...)
	if err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(ratelimit.NewReader(t, c.limiter))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	scanErr := scanner.Err()

	if err := c.finish(t); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read directory listing: %w", scanErr)
	}
	return lines, nil
}

// Size returns the size of a file with SIZE.
func (c *Conn) Size(path string) (int64, error) {
	resp, err := c.expect2xx("SIZE", path)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(resp.Message), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SIZE response: %s", resp.Message)
	}
	return size, nil
}

// ModTime returns the modification time of a file with MDTM.
func (c *Conn) ModTime(path string) (time.Time, error) {
	resp, err := c.expect2xx("MDTM", path)
	if err != nil {
		return time.Time{}, err
	}
	stamp := strings.TrimSpace(resp.Message)
	// Fractional seconds ("20231220143000.123") are allowed by RFC 3659.
	if i := strings.IndexByte(stamp, '.'); i >= 0 {
		stamp = stamp[:i]
	}
	t, err := time.Parse(mdtmLayout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid MDTM response: %s", resp.Message)
	}
	return t.UTC(), nil
}

// MakeDir sends MKD.
func (c *Conn) MakeDir(path string) error {
	_, err := c.expect2xx("MKD", path)
	return err
}

// Delete sends DELE.
func (c *Conn) Delete(path string) error {
	_, err := c.expect2xx("DELE", path)
	return err
}

// Rename sends RNFR followed by RNTO. Both paths are interpreted by the
// server relative to the current directory unless absolute.
func (c *Conn) Rename(from, to string) error {
	if _, err := c.expectCode(350, "RNFR", from); err != nil {
		return err
	}
	_, err := c.expect2xx("RNTO", to)
	return err
}

// Allocate declares the size of the next upload with ALLO. Servers that do
// not implement ALLO are tolerated; RFC 959 makes it a no-op for them.
func (c *Conn) Allocate(size int64) error {
	resp, err := c.cmd("ALLO", strconv.FormatInt(size, 10))
	if err != nil {
		return err
	}
	switch {
	case resp.Is2xx():
		return nil
	case resp.Code == 500 || resp.Code == 502 || resp.Code == 504:
		c.logger.Debug("server does not implement ALLO", "code", resp.Code)
		return nil
	default:
		return newProtocolError("ALLO", resp)
	}
}

// Store uploads r to path with STOR in binary mode and returns the number
// of bytes sent.
func (c *Conn) Store(path string, r io.Reader) (int64, error) {
	if err := c.Type("I"); err != nil {
		return 0, fmt.Errorf("set binary mode: %w", err)
	}
	t, err := c.startTransfer("STOR", path)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(ratelimit.NewWriter(t, c.limiter), r)
	finishErr := c.finish(t)
	if copyErr != nil {
		return n, fmt.Errorf("upload failed: %w", copyErr)
	}
	return n, finishErr
}

// Retrieve downloads path into w with RETR in binary mode and returns the
// number of bytes received.
func (c *Conn) Retrieve(path string, w io.Writer) (int64, error) {
	if err := c.Type("I"); err != nil {
		return 0, fmt.Errorf("set binary mode: %w", err)
	}
	t, err := c.startTransfer("RETR", path)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(w, ratelimit.NewReader(t, c.limiter))
	finishErr := c.finish(t)
	if copyErr != nil {
		return n, fmt.Errorf("download failed: %w", copyErr)
	}
	return n, finishErr
}
