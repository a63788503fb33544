package ftp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gonzalop/ftpstore/internal/ftpconn"
	"github.com/gonzalop/ftpstore/storage"
)

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func invalidArgument(op, format string, args ...any) error {
	return storage.NewError(storage.ErrInvalidArgument, op, "", fmt.Errorf(format, args...))
}

// Upload stores exactly size bytes from r as fileName inside uploadPath.
//
// Arguments are checked before any connection is made: r must be non-nil,
// size positive and fileName non-blank. A missing uploadPath is created
// first. The size is announced with ALLO before STOR, and a transfer that
// ends short of size is a transport failure.
func (b *Backend) Upload(ctx context.Context, r io.Reader, size int64, fileName, uploadPath string) (err error) {
	defer b.track(opUpload, time.Now(), &err)

	if r == nil {
		return invalidArgument(opUpload, "content is required")
	}
	if size <= 0 {
		return invalidArgument(opUpload, "content is empty")
	}
	if blank(fileName) {
		return invalidArgument(opUpload, "file name is required")
	}
	base, err := b.baseURL(opUpload)
	if err != nil {
		return err
	}

	if !blank(uploadPath) {
		exists, err := b.dirExists(ctx, opUpload, Resolve(base, uploadPath))
		if err != nil {
			return err
		}
		if !exists {
			if err := b.createDirectory(ctx, opUpload, base, uploadPath); err != nil {
				return err
			}
		}
	}

	loc := Resolve(base, path.Join(uploadPath, fileName))
	start := time.Now()
	var sent int64
	err = b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
		if err := c.Type("I"); err != nil {
			return err
		}
		if err := c.Allocate(size); err != nil {
			return err
		}
		var err error
		sent, err = c.Store(remotePath(loc), io.LimitReader(r, size))
		return err
	})
	if err != nil {
		return classify(opUpload, loc.String(), err)
	}
	if sent != size {
		b.removePartial(ctx, loc)
		return storage.NewError(storage.ErrTransportFailure, opUpload, loc.String(),
			fmt.Errorf("content ended after %d of %d bytes", sent, size))
	}
	b.recordTransfer("upload", sent, start)
	return nil
}

// removePartial deletes a short upload the server has already committed.
// Failures are logged and otherwise ignored.
func (b *Backend) removePartial(ctx context.Context, loc *url.URL) {
	err := b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
		return c.Delete(remotePath(loc))
	})
	if err != nil {
		b.logger.Debug("could not remove partial upload", "path", remotePath(loc), "error", err)
	}
}

// Download copies the file at location into w. Existence is not checked
// first; a missing file fails the RETR like any other transport error.
func (b *Backend) Download(ctx context.Context, w io.Writer, location string) (err error) {
	defer b.track(opDownload, time.Now(), &err)

	if w == nil {
		return invalidArgument(opDownload, "destination is required")
	}
	if blank(location) {
		return invalidArgument(opDownload, "location is required")
	}
	base, err := b.baseURL(opDownload)
	if err != nil {
		return err
	}
	loc := Resolve(base, location)

	start := time.Now()
	var received int64
	err = b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
		var err error
		received, err = c.Retrieve(remotePath(loc), w)
		return err
	})
	if err != nil {
		return classify(opDownload, loc.String(), err)
	}
	b.recordTransfer("download", received, start)
	return nil
}

// Move renames src to dst.
//
// It fails with storage.ErrNotFound when src does not exist and with
// storage.ErrAlreadyExists when dst does. The checks and the rename are
// separate exchanges, so a concurrent change on the server can slip in
// between. The rename itself changes into the directory of src and sends
// RNTO with dst relative to it.
func (b *Backend) Move(ctx context.Context, src, dst string) (err error) {
	defer b.track(opMove, time.Now(), &err)

	if blank(src) || blank(dst) {
		return invalidArgument(opMove, "source and destination are required")
	}
	base, err := b.baseURL(opMove)
	if err != nil {
		return err
	}
	srcLoc := Resolve(base, src)
	dstLoc := Resolve(base, dst)

	exists, err := b.exists(ctx, opMove, srcLoc)
	if err != nil {
		return err
	}
	if !exists {
		return storage.NewError(storage.ErrNotFound, opMove, srcLoc.String(), nil)
	}
	exists, err = b.exists(ctx, opMove, dstLoc)
	if err != nil {
		return err
	}
	if exists {
		return storage.NewError(storage.ErrAlreadyExists, opMove, dstLoc.String(), nil)
	}

	srcPath := remotePath(srcLoc)
	target, err := relativeTarget(srcPath, remotePath(dstLoc))
	if err != nil {
		return storage.NewError(storage.ErrInvalidArgument, opMove, dstLoc.String(), err)
	}
	err = b.exchange(ctx, srcLoc, func(c *ftpconn.Conn) error {
		if err := c.ChangeDir(path.Dir(srcPath)); err != nil {
			return err
		}
		return c.Rename(path.Base(srcPath), target)
	})
	if err != nil {
		return classify(opMove, srcLoc.String(), err)
	}
	return nil
}

// Delete removes the file fileName.
func (b *Backend) Delete(ctx context.Context, fileName string) (err error) {
	defer b.track(opDelete, time.Now(), &err)

	if blank(fileName) {
		return invalidArgument(opDelete, "file name is required")
	}
	base, err := b.baseURL(opDelete)
	if err != nil {
		return err
	}
	loc := Resolve(base, fileName)

	err = b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
		return c.Delete(remotePath(loc))
	})
	return classify(opDelete, loc.String(), err)
}

// Lookup describes fileName inside relPath.
//
// A missing file fails with storage.ErrNotFound before anything else is
// asked. Size (SIZE) and modification time (MDTM) are then fetched one
// after the other, each on its own connection, and the MIME type is
// inferred from the name.
func (b *Backend) Lookup(ctx context.Context, fileName, relPath string) (info *storage.FileInfo, err error) {
	defer b.track(opLookup, time.Now(), &err)

	if blank(fileName) {
		return nil, invalidArgument(opLookup, "file name is required")
	}
	base, err := b.baseURL(opLookup)
	if err != nil {
		return nil, err
	}
	loc := Resolve(base, path.Join(relPath, fileName))
	target := remotePath(loc)

	exists, err := b.exists(ctx, opLookup, loc)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.NewError(storage.ErrNotFound, opLookup, loc.String(), nil)
	}

	var size int64
	err = b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
		var err error
		size, err = c.Size(target)
		return err
	})
	if err != nil {
		return nil, classify(opLookup, loc.String(), err)
	}

	var modTime time.Time
	err = b.exchange(ctx, loc, func(c *ftpconn.Conn) error {
		var err error
		modTime, err = c.ModTime(target)
		return err
	})
	if err != nil {
		return nil, classify(opLookup, loc.String(), err)
	}

	name := path.Base(target)
	return &storage.FileInfo{
		Name:      name,
		CreatedAt: &modTime,
		Size:      size,
		MimeType:  storage.MimeType(name),
	}, nil
}
