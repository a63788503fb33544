// Package storage defines the Backend interface shared by the file store
// backends (FTP, local disk, S3) together with their settings, descriptors
// and error taxonomy.
package storage

import (
	"context"
	"io"
	"time"
)

// Backend is the capability interface every file store implements.
//
// Paths are relative to the backend's configured base location and use
// forward slashes. Failures are *Error values whose Kind is one of the
// sentinel errors in this package.
type Backend interface {
	// CanConnect reports whether the store is reachable with the loaded
	// settings.
	CanConnect(ctx context.Context) bool

	// LoadSettings validates and installs settings. It may be called once.
	LoadSettings(settings Settings) error

	// Lookup returns the descriptor of fileName inside relPath.
	Lookup(ctx context.Context, fileName, relPath string) (*FileInfo, error)

	// List returns the entries of relDir. Backends without native paging
	// ignore pageSize and pageToken and return everything in one page.
	List(ctx context.Context, relDir string, pageSize int, pageToken string) (*Page, error)

	// Move renames src to dst. It fails with ErrNotFound when src is missing
	// and ErrAlreadyExists when dst is present.
	Move(ctx context.Context, src, dst string) error

	// Download copies the content at location into w.
	Download(ctx context.Context, w io.Writer, location string) error

	// Upload stores size bytes read from r as fileName inside uploadPath,
	// creating uploadPath when it is missing.
	Upload(ctx context.Context, r io.Reader, size int64, fileName, uploadPath string) error

	// CreateDirectory creates relPath and any missing parents.
	CreateDirectory(ctx context.Context, relPath string) error

	// PathExists reports whether p exists.
	PathExists(ctx context.Context, p string) (bool, error)

	// Delete removes fileName.
	Delete(ctx context.Context, fileName string) error

	// Type returns the backend identifier ("ftp", "local", "s3").
	Type() string
}

// FileInfo describes one file or directory.
type FileInfo struct {
	// Name is the entry name. It is never "." or "..".
	Name string

	// CreatedAt is the creation or modification time when the store
	// reports one.
	CreatedAt *time.Time

	Size     int64
	MimeType string

	// IsDir is set when the store says the entry is a directory.
	IsDir bool

	// Raw is the listing line the entry was parsed from, if any.
	Raw string
}

// Page is one page of a directory listing.
type Page struct {
	Entries []FileInfo

	// NextPageToken is empty when there are no more entries.
	NextPageToken string
}
