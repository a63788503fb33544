// Package local implements storage.Backend on a directory tree.
//
// The tree is reached through an afero.Fs, the host filesystem by default,
// rooted at the path of a file:// base URL.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/gonzalop/ftpstore/storage"
)

// TypeName identifies the backend.
const TypeName = "local"

// Backend is a local directory storage backend.
type Backend struct {
	mu     sync.RWMutex
	loaded bool
	root   string
	fs     afero.Fs

	host   afero.Fs
	logger *slog.Logger
}

var _ storage.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithFs serves files from fsys instead of the host filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(b *Backend) { b.host = fsys }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a backend without settings.
func New(options ...Option) *Backend {
	b := &Backend{
		host:   afero.NewOsFs(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Open creates a backend and loads settings into it.
func Open(settings storage.Settings, options ...Option) (*Backend, error) {
	b := New(options...)
	if err := b.LoadSettings(settings); err != nil {
		return nil, err
	}
	return b, nil
}

// Type returns "local".
func (b *Backend) Type() string { return TypeName }

// LoadSettings accepts a file:// base URL naming an existing directory.
// The create_dirs option creates it instead.
func (b *Backend) LoadSettings(settings storage.Settings) error {
	u, err := settings.Validate()
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.Scheme, "file") {
		return storage.NewError(storage.ErrInvalidConfig, "load_settings", "", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	root := path.Clean("/" + u.Path)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return storage.NewError(storage.ErrInvalidConfig, "load_settings", "", errors.New("settings already loaded"))
	}

	info, err := b.host.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist) && settings.Option("create_dirs", "") == "true":
		if err := b.host.MkdirAll(root, 0o755); err != nil {
			return storage.NewError(storage.ErrInvalidConfig, "load_settings", root, err)
		}
	case err != nil:
		return storage.NewError(storage.ErrInvalidConfig, "load_settings", root, err)
	case !info.IsDir():
		return storage.NewError(storage.ErrInvalidConfig, "load_settings", root, errors.New("not a directory"))
	}

	b.root = root
	b.fs = afero.NewBasePathFs(b.host, root)
	b.loaded = true
	return nil
}

func (b *Backend) fsys(op string) (afero.Fs, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.loaded {
		return nil, storage.NewError(storage.ErrInvalidConfig, op, "", errors.New("settings not loaded"))
	}
	return b.fs, nil
}

// clean maps rel to a rooted path that cannot leave the base directory.
func clean(rel string) string {
	return path.Join("/", rel)
}

func classify(op, p string, err error) error {
	if err == nil {
		return nil
	}
	var serr *storage.Error
	if errors.As(err, &serr) {
		return err
	}
	kind := storage.ErrTransportFailure
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = storage.ErrNotFound
	case errors.Is(err, fs.ErrExist):
		kind = storage.ErrAlreadyExists
	case errors.Is(err, fs.ErrPermission):
		kind = storage.ErrUnauthorized
	case errors.Is(err, os.ErrDeadlineExceeded):
		kind = storage.ErrTimeout
	}
	return storage.NewError(kind, op, p, err)
}

func invalidArgument(op, msg string) error {
	return storage.NewError(storage.ErrInvalidArgument, op, "", errors.New(msg))
}

// CanConnect reports whether the base directory is readable.
func (b *Backend) CanConnect(_ context.Context) bool {
	fsys, err := b.fsys("can_connect")
	if err != nil {
		return false
	}
	_, err = fsys.Stat("/")
	return err == nil
}

// PathExists reports whether p exists.
func (b *Backend) PathExists(_ context.Context, p string) (bool, error) {
	fsys, err := b.fsys("exists")
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(fsys, clean(p))
	if err != nil {
		return false, classify("exists", p, err)
	}
	return ok, nil
}

// List returns the entries of relDir sorted by name. Paging is not
// supported.
func (b *Backend) List(_ context.Context, relDir string, _ int, _ string) (*storage.Page, error) {
	fsys, err := b.fsys("list")
	if err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(fsys, clean(relDir))
	if err != nil {
		return nil, classify("list", relDir, err)
	}
	entries := make([]storage.FileInfo, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, describe(fi))
	}
	return &storage.Page{Entries: entries}, nil
}

func describe(fi os.FileInfo) storage.FileInfo {
	mt := fi.ModTime()
	info := storage.FileInfo{
		Name:      fi.Name(),
		CreatedAt: &mt,
		IsDir:     fi.IsDir(),
	}
	if !fi.IsDir() {
		info.Size = fi.Size()
		info.MimeType = storage.MimeType(fi.Name())
	}
	return info
}

// Lookup describes fileName inside relPath.
func (b *Backend) Lookup(_ context.Context, fileName, relPath string) (*storage.FileInfo, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, invalidArgument("lookup", "file name is required")
	}
	fsys, err := b.fsys("lookup")
	if err != nil {
		return nil, err
	}
	p := clean(path.Join(relPath, fileName))
	fi, err := fsys.Stat(p)
	if err != nil {
		return nil, classify("lookup", p, err)
	}
	info := describe(fi)
	return &info, nil
}

// Move renames src to dst.
func (b *Backend) Move(_ context.Context, src, dst string) error {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return invalidArgument("move", "source and destination are required")
	}
	fsys, err := b.fsys("move")
	if err != nil {
		return err
	}
	from, to := clean(src), clean(dst)

	if ok, err := afero.Exists(fsys, from); err != nil {
		return classify("move", from, err)
	} else if !ok {
		return storage.NewError(storage.ErrNotFound, "move", from, nil)
	}
	if ok, err := afero.Exists(fsys, to); err != nil {
		return classify("move", to, err)
	} else if ok {
		return storage.NewError(storage.ErrAlreadyExists, "move", to, nil)
	}
	return classify("move", from, fsys.Rename(from, to))
}

// Download copies location into w.
func (b *Backend) Download(_ context.Context, w io.Writer, location string) error {
	if w == nil {
		return invalidArgument("download", "destination is required")
	}
	if strings.TrimSpace(location) == "" {
		return invalidArgument("download", "location is required")
	}
	fsys, err := b.fsys("download")
	if err != nil {
		return err
	}
	p := clean(location)
	f, err := fsys.Open(p)
	if err != nil {
		return classify("download", p, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return classify("download", p, err)
	}
	return nil
}

// Upload writes size bytes from r to fileName inside uploadPath. The data
// goes to a temporary file first and is renamed into place when complete.
func (b *Backend) Upload(_ context.Context, r io.Reader, size int64, fileName, uploadPath string) error {
	switch {
	case r == nil:
		return invalidArgument("upload", "content is required")
	case size <= 0:
		return invalidArgument("upload", "content is empty")
	case strings.TrimSpace(fileName) == "":
		return invalidArgument("upload", "file name is required")
	}
	fsys, err := b.fsys("upload")
	if err != nil {
		return err
	}

	dir := clean(uploadPath)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return classify("upload", dir, err)
	}
	target := clean(path.Join(uploadPath, fileName))

	tmp, err := afero.TempFile(fsys, dir, ".ftpstore-*.tmp")
	if err != nil {
		return classify("upload", target, err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, io.LimitReader(r, size))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n != size {
		err = fmt.Errorf("content ended after %d of %d bytes", n, size)
	}
	if err != nil {
		_ = fsys.Remove(tmpName)
		return storage.NewError(storage.ErrTransportFailure, "upload", target, err)
	}
	if err := fsys.Rename(tmpName, target); err != nil {
		_ = fsys.Remove(tmpName)
		return classify("upload", target, err)
	}
	b.logger.Debug("stored file", "path", target, "size", n)
	return nil
}

// CreateDirectory creates relPath and its parents.
func (b *Backend) CreateDirectory(_ context.Context, relPath string) error {
	if strings.TrimSpace(relPath) == "" {
		return invalidArgument("create_directory", "path is required")
	}
	fsys, err := b.fsys("create_directory")
	if err != nil {
		return err
	}
	p := clean(relPath)
	return classify("create_directory", p, fsys.MkdirAll(p, 0o755))
}

// Delete removes fileName.
func (b *Backend) Delete(_ context.Context, fileName string) error {
	if strings.TrimSpace(fileName) == "" {
		return invalidArgument("delete", "file name is required")
	}
	fsys, err := b.fsys("delete")
	if err != nil {
		return err
	}
	p := clean(fileName)
	return classify("delete", p, fsys.Remove(p))
}
