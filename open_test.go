package ftpstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpstore/internal/ftptest"
	"github.com/gonzalop/ftpstore/storage"
	"github.com/gonzalop/ftpstore/storage/ftp"
	"github.com/gonzalop/ftpstore/storage/s3"
)

// nopS3 satisfies s3.API; LoadSettings never calls it.
type nopS3 struct{ s3.API }

func TestKindFromURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "ftp://host/dir", want: KindFTP},
		{url: "FTP://host", want: KindFTP},
		{url: "file:///srv", want: KindLocal},
		{url: "s3://bucket/prefix", want: KindS3},
		{url: "sftp://host", wantErr: true},
		{url: "://bad", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := KindFromURL(tt.url)
			if tt.wantErr {
				require.ErrorIs(t, err, storage.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenInfersKind(t *testing.T) {
	t.Parallel()

	srv := ftptest.New(t)
	b, err := Open("", storage.Settings{BaseURL: srv.URL("/")},
		WithFTPOptions(ftp.WithTimeout(5*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, KindFTP, b.Type())
	assert.True(t, b.CanConnect(context.Background()))

	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/data", 0o755))
	b, err = Open("", storage.Settings{BaseURL: "file:///data"}, WithFs(mem))
	require.NoError(t, err)
	assert.Equal(t, KindLocal, b.Type())

	b, err = Open("", storage.Settings{BaseURL: "s3://bucket/prefix"}, WithS3Client(nopS3{}))
	require.NoError(t, err)
	assert.Equal(t, KindS3, b.Type())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := Open("", storage.Settings{})
	require.ErrorIs(t, err, storage.ErrMissingField)

	_, err = Open("webdav", storage.Settings{BaseURL: "ftp://host"})
	require.ErrorIs(t, err, storage.ErrInvalidConfig)

	// Explicit kind must agree with the scheme.
	_, err = Open(KindFTP, storage.Settings{BaseURL: "file:///data"})
	require.ErrorIs(t, err, storage.ErrInvalidConfig)

	b, err := Open("", storage.Settings{BaseURL: "file:///missing"}, WithFs(afero.NewMemMapFs()))
	require.ErrorIs(t, err, storage.ErrInvalidConfig)
	assert.Nil(t, b)
}

func TestOpenUploadThroughFactory(t *testing.T) {
	t.Parallel()

	srv := ftptest.New(t, ftptest.WithCredentials("alice", "secret"))
	b, err := Open("", storage.Settings{
		BaseURL:  srv.URL("/"),
		User:     "alice",
		Password: "secret",
	})
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("quarterly numbers")
	require.NoError(t, b.Upload(ctx, bytes.NewReader(data), int64(len(data)), "q1.csv", "reports"))

	got, err := afero.ReadFile(srv.Fs(), "/reports/q1.csv")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Contains(t, srv.Logins(), "alice")
}
