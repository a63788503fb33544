package ftp

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gonzalop/ftpstore/internal/ftpconn"
	"github.com/gonzalop/ftpstore/storage"
)

// CreateDirectory creates relPath below the base location, one segment at a
// time. Every prefix is probed with LIST, dotted names like "v1.2"
// included, and skipped when present, so calling it again on an existing
// path sends no MKD at all. Each probe and MKD uses its own connection.
func (b *Backend) CreateDirectory(ctx context.Context, relPath string) (err error) {
	defer b.track(opCreateDirectory, time.Now(), &err)

	if strings.TrimSpace(relPath) == "" {
		return storage.NewError(storage.ErrInvalidArgument, opCreateDirectory, "", errors.New("path is required"))
	}
	base, err := b.baseURL(opCreateDirectory)
	if err != nil {
		return err
	}
	return b.createDirectory(ctx, opCreateDirectory, base, relPath)
}

func (b *Backend) createDirectory(ctx context.Context, op string, base *url.URL, relPath string) error {
	prefix := ""
	for _, segment := range splitSegments(relPath) {
		if prefix == "" {
			prefix = segment
		} else {
			prefix += "/" + segment
		}
		loc := Resolve(base, prefix)

		exists, err := b.dirExists(ctx, op, loc)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		err = b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
			return c.MakeDir(remotePath(loc))
		})
		if err != nil {
			return classify(op, loc.String(), err)
		}
		b.logger.Debug("created directory", "path", remotePath(loc))
	}
	return nil
}

func splitSegments(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if strings.TrimSpace(s) != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
