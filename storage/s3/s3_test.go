package s3

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpstore/storage"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	denied  bool
	calls   map[string]int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), calls: make(map[string]int)}
}

func (f *fakeS3) enter(op string) error {
	f.calls[op]++
	if f.denied {
		return &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
	}
	return nil
}

func notFound() error {
	return &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HeadBucket"); err != nil {
		return nil, err
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HeadObject"); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, notFound()
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
	}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetObject"); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutObject"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CopyObject"); err != nil {
		return nil, err
	}
	_, src, _ := strings.Cut(aws.ToString(in.CopySource), "/")
	src, err := url.PathUnescape(src)
	if err != nil {
		return nil, err
	}
	data, ok := f.objects[src]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	f.objects[aws.ToString(in.Key)] = append([]byte(nil), data...)
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteObject"); err != nil {
		return nil, err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListObjectsV2"); err != nil {
		return nil, err
	}
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	seen := map[string]bool{}
	limit := int(aws.ToInt32(in.MaxKeys))
	if limit == 0 {
		limit = 1000
	}
	start := aws.ToString(in.ContinuationToken)
	count := 0
	for _, k := range keys {
		if start != "" && k <= start {
			continue
		}
		if count == limit {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(keyBefore(keys, k))
			break
		}
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
					count++
				}
				continue
			}
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		})
		count++
	}
	return out, nil
}

func keyBefore(keys []string, k string) string {
	i := sort.SearchStrings(keys, k)
	return keys[i-1]
}

func newBackend(t *testing.T) (*Backend, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	b, err := Open(storage.Settings{BaseURL: "s3://media/tenant-a"}, WithClient(fake))
	require.NoError(t, err)
	return b, fake
}

func TestLoadSettings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		baseURL string
		wantErr error
	}{
		{name: "bucket only", baseURL: "s3://media"},
		{name: "bucket and prefix", baseURL: "s3://media/a/b/"},
		{name: "blank", baseURL: "", wantErr: storage.ErrMissingField},
		{name: "wrong scheme", baseURL: "ftp://media", wantErr: storage.ErrInvalidConfig},
		{name: "no bucket", baseURL: "s3:///prefix", wantErr: storage.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(WithClient(newFakeS3()))
			err := b.LoadSettings(storage.Settings{BaseURL: tt.baseURL})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "s3", b.Type())
			require.ErrorIs(t, b.LoadSettings(storage.Settings{BaseURL: tt.baseURL}), storage.ErrInvalidConfig)
		})
	}
}

func TestNewClientFromSettings(t *testing.T) {
	t.Parallel()
	b, err := Open(storage.Settings{
		BaseURL:  "s3://media",
		User:     "AKIAEXAMPLE",
		Password: "secret",
		Options:  map[string]string{"region": "eu-central-1", "endpoint": "http://127.0.0.1:9000"},
	})
	require.NoError(t, err)
	client, ok := b.client.(*s3.Client)
	require.True(t, ok)
	assert.Equal(t, "eu-central-1", client.Options().Region)
	assert.True(t, client.Options().UsePathStyle)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(client.Options().BaseEndpoint))
}

func TestKeys(t *testing.T) {
	t.Parallel()
	b, _ := newBackend(t)
	assert.Equal(t, "tenant-a", b.key(""))
	assert.Equal(t, "tenant-a/x/y.txt", b.key("/x//y.txt"))
	assert.Equal(t, "tenant-a/etc", b.key("../../etc"))
	assert.Equal(t, "tenant-a/x/", b.dirKey("x"))
	assert.Equal(t, "media/dir%20one/a+b.txt", copySource("media", "dir one/a+b.txt"))
}

func TestUploadLookupDownload(t *testing.T) {
	t.Parallel()
	b, fake := newBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, strings.NewReader("report body"), 11, "r.pdf", "reports"))
	assert.Equal(t, "report body", string(fake.objects["tenant-a/reports/r.pdf"]))

	info, err := b.Lookup(ctx, "r.pdf", "reports")
	require.NoError(t, err)
	assert.Equal(t, "r.pdf", info.Name)
	assert.EqualValues(t, 11, info.Size)
	assert.Equal(t, "application/pdf", info.MimeType)
	require.NotNil(t, info.CreatedAt)

	var buf bytes.Buffer
	require.NoError(t, b.Download(ctx, &buf, "reports/r.pdf"))
	assert.Equal(t, "report body", buf.String())

	_, err = b.Lookup(ctx, "missing.pdf", "reports")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, b.Download(ctx, &buf, "missing.pdf"), storage.ErrNotFound)
}

func TestUploadValidationMakesNoCalls(t *testing.T) {
	t.Parallel()
	b, fake := newBackend(t)
	ctx := context.Background()

	require.ErrorIs(t, b.Upload(ctx, nil, 3, "a", ""), storage.ErrInvalidArgument)
	require.ErrorIs(t, b.Upload(ctx, strings.NewReader(""), 0, "a", ""), storage.ErrInvalidArgument)
	require.ErrorIs(t, b.Upload(ctx, strings.NewReader("abc"), 3, "", ""), storage.ErrInvalidArgument)
	assert.Empty(t, fake.calls)
}

func TestListWithDirectoriesAndPaging(t *testing.T) {
	t.Parallel()
	b, fake := newBackend(t)
	ctx := context.Background()

	require.NoError(t, b.CreateDirectory(ctx, "docs/empty"))
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, b.Upload(ctx, strings.NewReader("x"), 1, name, "docs"))
	}
	fake.objects["tenant-a/docs/sub/deep.txt"] = []byte("d")

	page, err := b.List(ctx, "docs", 0, "")
	require.NoError(t, err)
	names := []string{}
	for _, e := range page.Entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"empty", "sub", "a.txt", "b.txt", "c.txt"}, names)
	assert.Empty(t, page.NextPageToken)

	first, err := b.List(ctx, "docs", 2, "")
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	require.NotEmpty(t, first.NextPageToken)

	second, err := b.List(ctx, "docs", 10, first.NextPageToken)
	require.NoError(t, err)
	assert.Len(t, second.Entries, 3)
}

func TestPathExists(t *testing.T) {
	t.Parallel()
	b, fake := newBackend(t)
	ctx := context.Background()
	fake.objects["tenant-a/dir/file.txt"] = []byte("f")

	for p, want := range map[string]bool{
		"":             true,
		"dir":          true,
		"dir/file.txt": true,
		"dir/nope.txt": false,
		"elsewhere":    false,
	} {
		got, err := b.PathExists(ctx, p)
		require.NoError(t, err, p)
		assert.Equal(t, want, got, p)
	}
}

func TestMove(t *testing.T) {
	t.Parallel()
	b, fake := newBackend(t)
	ctx := context.Background()
	fake.objects["tenant-a/a.txt"] = []byte("a")
	fake.objects["tenant-a/b.txt"] = []byte("b")

	require.ErrorIs(t, b.Move(ctx, "missing.txt", "c.txt"), storage.ErrNotFound)
	require.ErrorIs(t, b.Move(ctx, "a.txt", "b.txt"), storage.ErrAlreadyExists)
	require.NoError(t, b.Move(ctx, "a.txt", "archive/a copy.txt"))

	assert.NotContains(t, fake.objects, "tenant-a/a.txt")
	assert.Equal(t, "a", string(fake.objects["tenant-a/archive/a copy.txt"]))
}

func TestDelete(t *testing.T) {
	t.Parallel()
	b, fake := newBackend(t)
	fake.objects["tenant-a/x.txt"] = []byte("x")

	require.NoError(t, b.Delete(context.Background(), "x.txt"))
	assert.Empty(t, fake.objects)
	require.ErrorIs(t, b.Delete(context.Background(), " "), storage.ErrInvalidArgument)
}

func TestAccessDenied(t *testing.T) {
	t.Parallel()
	b, fake := newBackend(t)
	fake.denied = true
	ctx := context.Background()

	assert.False(t, b.CanConnect(ctx))
	_, err := b.PathExists(ctx, "x")
	require.ErrorIs(t, err, storage.ErrUnauthorized)
	_, err = b.List(ctx, "", 0, "")
	require.ErrorIs(t, err, storage.ErrUnauthorized)
	require.ErrorIs(t, b.Move(ctx, "a.txt", "b.txt"), storage.ErrUnauthorized)
	require.ErrorIs(t, b.Upload(ctx, strings.NewReader("x"), 1, "x.txt", ""), storage.ErrUnauthorized)
	require.ErrorIs(t, b.CreateDirectory(ctx, "d"), storage.ErrUnauthorized)
	require.ErrorIs(t, b.Delete(ctx, "x.txt"), storage.ErrUnauthorized)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Classify(nil))
	assert.Equal(t, storage.ErrNotFound, Classify(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.Equal(t, storage.ErrUnauthorized, Classify(&smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}))
	assert.Equal(t, storage.ErrTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, storage.ErrTransportFailure, Classify(&smithy.GenericAPIError{Code: "SlowDown"}))
}
