package ftpstore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/afero"

	"github.com/gonzalop/ftpstore/storage"
	"github.com/gonzalop/ftpstore/storage/ftp"
	"github.com/gonzalop/ftpstore/storage/local"
	"github.com/gonzalop/ftpstore/storage/s3"
)

// Backend kinds accepted by Open.
const (
	KindFTP   = ftp.TypeName
	KindLocal = local.TypeName
	KindS3    = s3.TypeName
)

type openConfig struct {
	logger     *slog.Logger
	ftpOptions []ftp.Option
	fs         afero.Fs
	s3Client   s3.API
}

// Option configures Open.
type Option func(*openConfig)

// WithLogger sets the logger handed to the backend.
func WithLogger(logger *slog.Logger) Option {
	return func(c *openConfig) { c.logger = logger }
}

// WithFTPOptions passes options to the FTP backend. They are ignored for
// other kinds.
func WithFTPOptions(options ...ftp.Option) Option {
	return func(c *openConfig) { c.ftpOptions = append(c.ftpOptions, options...) }
}

// WithFs sets the filesystem used by the local backend.
func WithFs(fsys afero.Fs) Option {
	return func(c *openConfig) { c.fs = fsys }
}

// WithS3Client sets the client used by the S3 backend.
func WithS3Client(client s3.API) Option {
	return func(c *openConfig) { c.s3Client = client }
}

// KindFromURL maps the scheme of a base URL to a backend kind.
func KindFromURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", storage.NewError(storage.ErrInvalidConfig, "load_settings", "", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ftp":
		return KindFTP, nil
	case "file":
		return KindLocal, nil
	case "s3":
		return KindS3, nil
	default:
		return "", storage.NewError(storage.ErrInvalidConfig, "load_settings", "", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
}

// Open creates a backend of the given kind and loads settings into it.
// An empty kind is inferred from the scheme of settings.BaseURL.
func Open(kind string, settings storage.Settings, options ...Option) (storage.Backend, error) {
	cfg := &openConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	if kind == "" {
		if strings.TrimSpace(settings.BaseURL) == "" {
			return nil, storage.NewError(storage.ErrMissingField, "load_settings", "", fmt.Errorf("base_url is required"))
		}
		k, err := KindFromURL(settings.BaseURL)
		if err != nil {
			return nil, err
		}
		kind = k
	}

	switch kind {
	case KindFTP:
		opts := cfg.ftpOptions
		if cfg.logger != nil {
			opts = append([]ftp.Option{ftp.WithLogger(cfg.logger)}, opts...)
		}
		b, err := ftp.Open(settings, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindLocal:
		var opts []local.Option
		if cfg.fs != nil {
			opts = append(opts, local.WithFs(cfg.fs))
		}
		if cfg.logger != nil {
			opts = append(opts, local.WithLogger(cfg.logger))
		}
		b, err := local.Open(settings, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindS3:
		var opts []s3.Option
		if cfg.s3Client != nil {
			opts = append(opts, s3.WithClient(cfg.s3Client))
		}
		if cfg.logger != nil {
			opts = append(opts, s3.WithLogger(cfg.logger))
		}
		b, err := s3.Open(settings, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, storage.NewError(storage.ErrInvalidConfig, "load_settings", "", fmt.Errorf("unknown backend type: %s", kind))
	}
}
