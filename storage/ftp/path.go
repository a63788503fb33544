package ftp

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Resolve joins rel onto base. A blank rel yields a copy of base.
// Otherwise rel is cleaned as if rooted, so ".." never climbs above the
// base path, and joined without duplicate separators. Scheme, host and user
// info are preserved.
func Resolve(base *url.URL, rel string) *url.URL {
	u := *base
	if strings.TrimSpace(rel) == "" {
		return &u
	}
	basePath := base.Path
	if basePath == "" {
		basePath = "/"
	}
	u.Path = path.Join(basePath, path.Join("/", rel))
	u.RawPath = ""
	return &u
}

// IsDirectoryLike guesses whether loc names a directory.
//
// FTP has no cheap way to ask; the guess is that a final segment without an
// extension (a "." followed by at least one character) is a directory. It is
// wrong for extensionless files such as "Makefile" and for directories like
// "v1.2". Callers that need certainty must LIST the parent instead.
func IsDirectoryLike(loc *url.URL) bool {
	return len(path.Ext(path.Base(remotePath(loc)))) <= 1
}

// remotePath is the server side path of loc.
func remotePath(loc *url.URL) string {
	if loc.Path == "" {
		return "/"
	}
	return loc.Path
}

// relativeTarget expresses dst relative to the directory holding src, the
// form RNTO expects after changing into that directory. Both paths must be
// absolute and clean.
func relativeTarget(src, dst string) (string, error) {
	rel, err := filepath.Rel(filepath.FromSlash(path.Dir(src)), filepath.FromSlash(dst))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
