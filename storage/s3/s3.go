// Package s3 implements storage.Backend on an S3 compatible bucket.
//
// The base URL is s3://bucket/prefix. Directories are key prefixes; the
// backend writes empty "dir/" marker objects for CreateDirectory so that
// empty directories can be listed. Settings user and password are used as
// a static access key pair; otherwise the default AWS credential chain
// applies. Options: region, endpoint (for MinIO and friends) and
// path_style.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gonzalop/ftpstore/storage"
)

// TypeName identifies the backend.
const TypeName = "s3"

const defaultRegion = "us-east-1"

// API is the part of *s3.Client the backend uses.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ API = (*s3.Client)(nil)

// Backend is an S3 storage backend.
type Backend struct {
	mu     sync.RWMutex
	loaded bool
	client API
	bucket string
	prefix string

	logger *slog.Logger
}

var _ storage.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithClient uses client instead of building one from the settings.
func WithClient(client API) Option {
	return func(b *Backend) { b.client = client }
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
	b := &Backend{logger: slog.New(slog.DiscardHandler)}
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

// Type returns "s3".
func (b *Backend) Type() string { return TypeName }

// LoadSettings accepts an s3://bucket/prefix base URL.
func (b *Backend) LoadSettings(settings storage.Settings) error {
	u, err := settings.Validate()
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return storage.NewError(storage.ErrInvalidConfig, "load_settings", "", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return storage.NewError(storage.ErrInvalidConfig, "load_settings", "", errors.New("base_url has no bucket"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return storage.NewError(storage.ErrInvalidConfig, "load_settings", "", errors.New("settings already loaded"))
	}
	if b.client == nil {
		client, err := newClient(settings)
		if err != nil {
			return storage.NewError(storage.ErrInvalidConfig, "load_settings", "", err)
		}
		b.client = client
	}
	b.bucket = u.Host
	b.prefix = strings.Trim(path.Clean("/"+u.Path), "/")
	b.loaded = true
	return nil
}

func newClient(settings storage.Settings) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(settings.Option("region", defaultRegion)),
	}
	if settings.HasCredentials() {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.User, settings.Password, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := settings.Option("endpoint", "")
	pathStyle := settings.Option("path_style", "") == "true" || (endpoint != "" && settings.Option("path_style", "") != "false")
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	}), nil
}

func (b *Backend) state(op string) (API, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.loaded {
		return nil, storage.NewError(storage.ErrInvalidConfig, op, "", errors.New("settings not loaded"))
	}
	return b.client, nil
}

// key maps a relative path to an object key below the prefix.
func (b *Backend) key(rel string) string {
	return strings.TrimPrefix(path.Join("/", b.prefix, path.Join("/", rel)), "/")
}

// dirKey is the key prefix of the entries in directory rel.
func (b *Backend) dirKey(rel string) string {
	k := b.key(rel)
	if k == "" {
		return ""
	}
	return k + "/"
}

// copySource encodes bucket/key for CopyObject.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

// CanConnect checks the bucket with HeadBucket.
func (b *Backend) CanConnect(ctx context.Context) bool {
	client, err := b.state("can_connect")
	if err != nil {
		return false
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		b.logger.Warn("s3 bucket unreachable", "bucket", b.bucket, "error", err)
		return false
	}
	return true
}

func (b *Backend) objectExists(ctx context.Context, client API, key string) (bool, error) {
	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(Classify(err), storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (b *Backend) prefixExists(ctx context.Context, client API, prefix string) (bool, error) {
	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// PathExists reports whether p is an object or a non-empty prefix.
// Unauthorized and timeout failures are returned; others read as absent.
func (b *Backend) PathExists(ctx context.Context, p string) (bool, error) {
	client, err := b.state("exists")
	if err != nil {
		return false, err
	}
	return b.exists(ctx, client, p)
}

func (b *Backend) exists(ctx context.Context, client API, p string) (bool, error) {
	k := b.key(p)
	var (
		ok  bool
		err error
	)
	if k != "" {
		ok, err = b.objectExists(ctx, client, k)
	}
	if err == nil && !ok {
		ok, err = b.prefixExists(ctx, client, b.dirKey(p))
	}
	if err != nil {
		kind := Classify(err)
		if errors.Is(kind, storage.ErrUnauthorized) || errors.Is(kind, storage.ErrTimeout) {
			return false, storage.NewError(kind, "exists", k, err)
		}
		b.logger.Debug("path treated as missing", "key", k, "error", err)
		return false, nil
	}
	return ok, nil
}

// List returns one page of the entries of relDir. pageSize caps the number
// of keys fetched (S3 counts common prefixes too); pageToken continues a
// previous listing.
func (b *Backend) List(ctx context.Context, relDir string, pageSize int, pageToken string) (*storage.Page, error) {
	client, err := b.state("list")
	if err != nil {
		return nil, err
	}
	prefix := b.dirKey(relDir)
	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}
	if pageSize > 0 {
		in.MaxKeys = aws.Int32(int32(min(pageSize, 1000)))
	}
	if pageToken != "" {
		in.ContinuationToken = aws.String(pageToken)
	}

	out, err := client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, classify("list", prefix, err)
	}

	page := &storage.Page{}
	for _, cp := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
		if name == "" {
			continue
		}
		page.Entries = append(page.Entries, storage.FileInfo{Name: name, IsDir: true})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		name := strings.TrimPrefix(key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		page.Entries = append(page.Entries, objectInfo(name, obj))
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextPageToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func objectInfo(name string, obj types.Object) storage.FileInfo {
	info := storage.FileInfo{
		Name:     name,
		Size:     aws.ToInt64(obj.Size),
		MimeType: storage.MimeType(name),
		Raw:      aws.ToString(obj.Key),
	}
	if obj.LastModified != nil {
		t := *obj.LastModified
		info.CreatedAt = &t
	}
	return info
}

// Lookup describes the object fileName inside relPath.
func (b *Backend) Lookup(ctx context.Context, fileName, relPath string) (*storage.FileInfo, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, invalidArgument("lookup", "file name is required")
	}
	client, err := b.state("lookup")
	if err != nil {
		return nil, err
	}
	k := b.key(path.Join(relPath, fileName))
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return nil, classify("lookup", k, err)
	}

	name := path.Base(k)
	info := &storage.FileInfo{
		Name:     name,
		Size:     aws.ToInt64(out.ContentLength),
		MimeType: aws.ToString(out.ContentType),
	}
	if info.MimeType == "" {
		info.MimeType = storage.MimeType(name)
	}
	if out.LastModified != nil {
		t := *out.LastModified
		info.CreatedAt = &t
	}
	return info, nil
}

// Move copies src to dst and deletes src. Only objects can be moved.
func (b *Backend) Move(ctx context.Context, src, dst string) error {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return invalidArgument("move", "source and destination are required")
	}
	client, err := b.state("move")
	if err != nil {
		return err
	}
	from, to := b.key(src), b.key(dst)

	ok, err := b.objectExists(ctx, client, from)
	if err != nil {
		return classify("move", from, err)
	}
	if !ok {
		return storage.NewError(storage.ErrNotFound, "move", from, nil)
	}
	ok, err = b.exists(ctx, client, dst)
	if err != nil {
		return err
	}
	if ok {
		return storage.NewError(storage.ErrAlreadyExists, "move", to, nil)
	}

	_, err = client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(to),
		CopySource: aws.String(copySource(b.bucket, from)),
	})
	if err != nil {
		return classify("move", from, err)
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(from),
	})
	return classify("move", from, err)
}

// Download streams the object at location into w.
func (b *Backend) Download(ctx context.Context, w io.Writer, location string) error {
	if w == nil {
		return invalidArgument("download", "destination is required")
	}
	if strings.TrimSpace(location) == "" {
		return invalidArgument("download", "location is required")
	}
	client, err := b.state("download")
	if err != nil {
		return err
	}
	k := b.key(location)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return classify("download", k, err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return classify("download", k, err)
	}
	return nil
}

// Upload puts size bytes from r at uploadPath/fileName. Prefixes need no
// creation in S3, so uploadPath is used as is.
func (b *Backend) Upload(ctx context.Context, r io.Reader, size int64, fileName, uploadPath string) error {
	switch {
	case r == nil:
		return invalidArgument("upload", "content is required")
	case size <= 0:
		return invalidArgument("upload", "content is empty")
	case strings.TrimSpace(fileName) == "":
		return invalidArgument("upload", "file name is required")
	}
	client, err := b.state("upload")
	if err != nil {
		return err
	}
	k := b.key(path.Join(uploadPath, fileName))

	start := time.Now()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(k),
		Body:          io.LimitReader(r, size),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(storage.MimeType(fileName)),
	})
	if err != nil {
		return classify("upload", k, err)
	}
	b.logger.Debug("s3 put object", "key", k, "size", size, "duration", time.Since(start))
	return nil
}

// CreateDirectory writes a "relPath/" marker object.
func (b *Backend) CreateDirectory(ctx context.Context, relPath string) error {
	if strings.TrimSpace(relPath) == "" {
		return invalidArgument("create_directory", "path is required")
	}
	client, err := b.state("create_directory")
	if err != nil {
		return err
	}
	k := b.dirKey(relPath)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(k),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	return classify("create_directory", k, err)
}

// Delete removes the object fileName.
func (b *Backend) Delete(ctx context.Context, fileName string) error {
	if strings.TrimSpace(fileName) == "" {
		return invalidArgument("delete", "file name is required")
	}
	client, err := b.state("delete")
	if err != nil {
		return err
	}
	k := b.key(fileName)
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	return classify("delete", k, err)
}
