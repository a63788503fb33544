package ftp

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gonzalop/ftpstore/internal/ftpconn"
	"github.com/gonzalop/ftpstore/storage"
)

// PathExists reports whether p exists below the base location.
//
// Directory-like paths (see IsDirectoryLike) are probed with LIST, others
// with SIZE; any positive reply means the path exists. Rejected credentials
// and timeouts are returned as errors; every other failure reads as
// "does not exist", since FTP servers rarely distinguish the two.
func (b *Backend) PathExists(ctx context.Context, p string) (exists bool, err error) {
	defer b.track(opExists, time.Now(), &err)

	base, err := b.baseURL(opExists)
	if err != nil {
		return false, err
	}
	return b.exists(ctx, opExists, Resolve(base, p))
}

// exists probes loc on behalf of op, choosing LIST or SIZE by the
// directory heuristic. Errors that escape are tagged with op.
func (b *Backend) exists(ctx context.Context, op string, loc *url.URL) (bool, error) {
	return b.probe(ctx, op, loc, IsDirectoryLike(loc))
}

// dirExists probes loc with LIST. Used where loc is known to name a
// directory, whatever its final segment looks like.
func (b *Backend) dirExists(ctx context.Context, op string, loc *url.URL) (bool, error) {
	return b.probe(ctx, op, loc, true)
}

func (b *Backend) probe(ctx context.Context, op string, loc *url.URL, dir bool) (bool, error) {
	target := remotePath(loc)
	err := b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
		if dir {
			_, err := c.List(target)
			return err
		}
		_, err := c.Size(target)
		return err
	})
	if err == nil {
		return true, nil
	}

	kind := Classify(err)
	if errors.Is(kind, storage.ErrUnauthorized) || errors.Is(kind, storage.ErrTimeout) {
		return false, storage.NewError(kind, op, loc.String(), err)
	}
	b.logger.Debug("path treated as missing", "path", target, "error", err)
	return false, nil
}
