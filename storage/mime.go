package storage

import (
	"mime"
	"path"
	"strings"
)

// DefaultMimeType is returned for names without a known extension.
const DefaultMimeType = "application/octet-stream"

// Extensions the system MIME database often lacks.
var extraMimeTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".csv":  "text/csv",
	".log":  "text/plain",
	".tgz":  "application/gzip",
	".gz":   "application/gzip",
	".7z":   "application/x-7z-compressed",
	".heic": "image/heic",
	".mkv":  "video/x-matroska",
}

// MimeType infers a MIME type from the extension of name.
func MimeType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return DefaultMimeType
	}
	if t, ok := extraMimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return DefaultMimeType
}
