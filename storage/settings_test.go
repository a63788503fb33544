package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		baseURL string
		wantErr error
	}{
		{name: "ftp url", baseURL: "ftp://example.com/data"},
		{name: "blank", baseURL: "   ", wantErr: ErrMissingField},
		{name: "no scheme", baseURL: "example.com/data", wantErr: ErrInvalidConfig},
		{name: "unparsable", baseURL: "ftp://[::1", wantErr: ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Settings{BaseURL: tt.baseURL}.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "example.com", u.Host)
		})
	}
}

func TestHasCredentials(t *testing.T) {
	t.Parallel()
	assert.True(t, Settings{User: "u", Password: "p"}.HasCredentials())
	assert.False(t, Settings{User: "u"}.HasCredentials())
	assert.False(t, Settings{Password: "p"}.HasCredentials())
	assert.False(t, Settings{User: " ", Password: "p"}.HasCredentials())
}

func TestOverlay(t *testing.T) {
	t.Parallel()
	base := Settings{
		BaseURL: "ftp://a/",
		User:    "alice",
		Options: map[string]string{"region": "eu-west-1"},
	}
	got := base.Overlay(Settings{
		BaseURL:  "ftp://b/",
		Password: "pw",
		Options:  map[string]string{"endpoint": "http://minio:9000"},
	})

	assert.Equal(t, "ftp://b/", got.BaseURL)
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, "pw", got.Password)
	assert.Equal(t, "eu-west-1", got.Option("region", ""))
	assert.Equal(t, "http://minio:9000", got.Option("endpoint", ""))
	assert.Equal(t, "fallback", got.Option("missing", "fallback"))
	assert.Len(t, base.Options, 1, "overlay must not mutate the receiver")
}

func TestLoadSettingsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ftpstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: ftp://files.example.com/incoming
user: bob
password: hunter2
options:
  timeout: 10s
`), 0o600))

	s, err := LoadSettingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ftp://files.example.com/incoming", s.BaseURL)
	assert.Equal(t, "bob", s.User)
	assert.Equal(t, "hunter2", s.Password)
	assert.Equal(t, "10s", s.Option("timeout", ""))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("base_url: [unclosed"), 0o600))
	_, err = LoadSettingsFile(bad)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadSettingsFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("TESTSTORE_BASE_URL", "ftp://env.example.com/")
	t.Setenv("TESTSTORE_USER", "env-user")

	s := SettingsFromEnv("TESTSTORE")
	assert.Equal(t, "ftp://env.example.com/", s.BaseURL)
	assert.Equal(t, "env-user", s.User)
	assert.Empty(t, s.Password)
}
