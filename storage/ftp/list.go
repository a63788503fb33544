package ftp

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gonzalop/ftpstore/internal/ftpconn"
	"github.com/gonzalop/ftpstore/storage"
)

// List returns the entries of relDir in server order, without "." and "..".
//
// The entry name is the last whitespace separated token of each LIST line,
// so names containing spaces are truncated to their final word. FTP has no
// paging: pageSize and pageToken are ignored and NextPageToken is empty.
func (b *Backend) List(ctx context.Context, relDir string, pageSize int, pageToken string) (page *storage.Page, err error) {
	defer b.track(opList, time.Now(), &err)

	base, err := b.baseURL(opList)
	if err != nil {
		return nil, err
	}
	loc := Resolve(base, relDir)

	var lines []string
	err = b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
		var err error
		lines, err = c.List(remotePath(loc))
		return err
	})
	if err != nil {
		return nil, classify(opList, loc.String(), err)
	}
	return &storage.Page{Entries: parseListing(lines)}, nil
}

func parseListing(lines []string) []storage.FileInfo {
	entries := make([]storage.FileInfo, 0, len(lines))
	now := time.Now()
	for _, line := range lines {
		if entry, ok := parseEntry(line, now); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// parseEntry turns one LIST line into a FileInfo. Lines in the common
// Unix "ls -l" layout also yield type, size and time:
//
//	drwxr-xr-x 1 owner group 0 Jan 02 15:04 name
func parseEntry(line string, now time.Time) (storage.FileInfo, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return storage.FileInfo{}, false
	}

	last := fields[len(fields)-1]
	name := strings.TrimSuffix(last, "/")
	if name == "" || name == "." || name == ".." {
		return storage.FileInfo{}, false
	}

	entry := storage.FileInfo{
		Name:  name,
		Raw:   line,
		IsDir: name != last,
	}
	parseUnixFields(&entry, fields, now)
	if !entry.IsDir {
		entry.MimeType = storage.MimeType(name)
	}
	return entry, true
}

// parseUnixFields fills in type, size and time from a 9-field Unix line.
// Other layouts are left alone.
func parseUnixFields(entry *storage.FileInfo, fields []string, now time.Time) {
	if len(fields) < 9 || len(fields[0]) != 10 || !strings.ContainsRune("-dlbcps", rune(fields[0][0])) {
		return
	}
	size, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil || size < 0 {
		return
	}
	entry.Size = size
	if fields[0][0] == 'd' {
		entry.IsDir = true
	}
	if t, ok := parseListTime(fields[5], fields[6], fields[7], now); ok {
		entry.CreatedAt = &t
	}
}

// parseListTime parses "Jan 02 15:04" (current year, or last year when
// that would be in the future) and "Jan 02 2006". Times are UTC.
func parseListTime(month, day, clockOrYear string, now time.Time) (time.Time, bool) {
	if strings.Contains(clockOrYear, ":") {
		t, err := time.Parse("Jan 2 15:04 2006", month+" "+day+" "+clockOrYear+" "+strconv.Itoa(now.Year()))
		if err != nil {
			return time.Time{}, false
		}
		if t.After(now.Add(24 * time.Hour)) {
			t = t.AddDate(-1, 0, 0)
		}
		return t, true
	}
	t, err := time.Parse("Jan 2 2006", month+" "+day+" "+clockOrYear)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
