// Command ftpstore runs single file store operations from the shell.
//
// Usage:
//
//	ftpstore [flags] <command> [args]
//
// Commands:
//
//	ping                      check that the store is reachable
//	ls [dir]                  list a directory
//	stat <dir> <name>         describe a file
//	exists <path>             report whether a path exists
//	get <remote> [local]      download a file (stdout when local is omitted)
//	put <local> [dir]         upload a file into dir
//	mv <src> <dst>            rename a file
//	mkdir <dir>               create a directory and its parents
//	rm <path>                 delete a file
//
// Settings are read from -config, then FTPSTORE_* environment variables,
// then the -base-url, -user and -password flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gonzalop/ftpstore"
	"github.com/gonzalop/ftpstore/internal/logging"
	"github.com/gonzalop/ftpstore/internal/metrics"
	"github.com/gonzalop/ftpstore/storage"
	"github.com/gonzalop/ftpstore/storage/ftp"
)

var errUsage = errors.New("usage")

type options struct {
	configPath  string
	settings    storage.Settings
	timeout     time.Duration
	bwlimit     int64
	logLevel    string
	logFormat   string
	metricsFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ftpstore", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "YAML settings file")
	fs.StringVar(&opts.settings.BaseURL, "base-url", "", "base URL (ftp://, file://, s3://)")
	fs.StringVar(&opts.settings.User, "user", "", "user name")
	fs.StringVar(&opts.settings.Password, "password", "", "password")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "FTP connect and I/O timeout")
	fs.Int64Var(&opts.bwlimit, "bwlimit", 0, "FTP transfer limit in bytes per second (0 = unlimited)")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.StringVar(&opts.logFormat, "log-format", "console", "log format (console, json)")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ftpstore [flags] <ping|ls|stat|exists|get|put|mv|mkdir|rm> [args]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger, err := logging.New(logging.Config{Level: opts.logLevel, Format: opts.logFormat})
	if err != nil {
		fmt.Fprintf(stderr, "ftpstore: logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	err = execute(ctx, opts, fs.Args(), logger, stdout)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "ftpstore: %v\n", err)
		fs.Usage()
		return 2
	default:
		logger.Debug("command failed", zap.Error(err))
		fmt.Fprintf(stderr, "ftpstore: %v\n", err)
		return 1
	}
}

func execute(ctx context.Context, opts options, args []string, logger *zap.Logger, stdout io.Writer) error {
	settings, err := resolveSettings(opts)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	if opts.metricsFile != "" {
		defer func() {
			if werr := prometheus.WriteToTextfile(opts.metricsFile, reg); werr != nil {
				logger.Warn("write metrics", zap.String("path", opts.metricsFile), zap.Error(werr))
			}
		}()
	}

	backend, err := ftpstore.Open("", settings,
		ftpstore.WithLogger(logging.Slog(logger)),
		ftpstore.WithFTPOptions(
			ftp.WithTimeout(opts.timeout),
			ftp.WithBandwidthLimit(opts.bwlimit),
			ftp.WithMetrics(collector),
		),
	)
	if err != nil {
		return err
	}
	logger.Debug("backend ready", zap.String("type", backend.Type()))

	cmd, rest := args[0], args[1:]
	return dispatch(ctx, backend, cmd, rest, stdout)
}

func resolveSettings(opts options) (storage.Settings, error) {
	var settings storage.Settings
	if opts.configPath != "" {
		s, err := storage.LoadSettingsFile(opts.configPath)
		if err != nil {
			return storage.Settings{}, err
		}
		settings = s
	}
	settings = settings.Overlay(storage.SettingsFromEnv(storage.DefaultEnvPrefix))
	return settings.Overlay(opts.settings), nil
}

func dispatch(ctx context.Context, b storage.Backend, cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "ping":
		if !b.CanConnect(ctx) {
			return fmt.Errorf("%s store is not reachable", b.Type())
		}
		fmt.Fprintln(stdout, "ok")
		return nil

	case "ls":
		if len(args) > 1 {
			return fmt.Errorf("%w: ls [dir]", errUsage)
		}
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		return list(ctx, b, dir, stdout)

	case "stat":
		if len(args) != 2 {
			return fmt.Errorf("%w: stat <dir> <name>", errUsage)
		}
		info, err := b.Lookup(ctx, args[1], args[0])
		if err != nil {
			return err
		}
		created := "-"
		if info.CreatedAt != nil {
			created = info.CreatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(stdout, "name: %s\nsize: %d\nmodified: %s\ntype: %s\n", info.Name, info.Size, created, info.MimeType)
		return nil

	case "exists":
		if len(args) != 1 {
			return fmt.Errorf("%w: exists <path>", errUsage)
		}
		ok, err := b.PathExists(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, ok)
		return nil

	case "get":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("%w: get <remote> [local]", errUsage)
		}
		if len(args) == 1 {
			return b.Download(ctx, stdout, args[0])
		}
		return download(ctx, b, args[0], args[1])

	case "put":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("%w: put <local> [dir]", errUsage)
		}
		dir := ""
		if len(args) == 2 {
			dir = args[1]
		}
		return upload(ctx, b, args[0], dir)

	case "mv":
		if len(args) != 2 {
			return fmt.Errorf("%w: mv <src> <dst>", errUsage)
		}
		return b.Move(ctx, args[0], args[1])

	case "mkdir":
		if len(args) != 1 {
			return fmt.Errorf("%w: mkdir <dir>", errUsage)
		}
		return b.CreateDirectory(ctx, args[0])

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("%w: rm <path>", errUsage)
		}
		return b.Delete(ctx, args[0])

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func list(ctx context.Context, b storage.Backend, dir string, stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	token := ""
	for {
		page, err := b.List(ctx, dir, 0, token)
		if err != nil {
			return err
		}
		for _, e := range page.Entries {
			kind := "-"
			if e.IsDir {
				kind = "d"
			}
			modified := "-"
			if e.CreatedAt != nil {
				modified = e.CreatedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", kind, e.Size, modified, e.Name)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	return tw.Flush()
}

func download(ctx context.Context, b storage.Backend, remote, local string) (err error) {
	if fi, serr := os.Stat(local); serr == nil && fi.IsDir() {
		local = filepath.Join(local, path.Base(remote))
	}
	f, err := os.Create(local)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(local)
		}
	}()
	return b.Download(ctx, f, remote)
}

func upload(ctx context.Context, b storage.Backend, local, dir string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", local)
	}
	return b.Upload(ctx, f, fi.Size(), filepath.Base(local), dir)
}
