package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsmith-ai/tripsmith/core"
)

func s3TestConfig(endpoint string) core.AssetsConfig {
	return core.AssetsConfig{
		Provider:  "s3",
		Bucket:    "media-bucket",
		Prefix:    "media",
		Endpoint:  endpoint,
		PublicURL: "https://cdn.example.com",
		AccessKey: "test-access",
		SecretKey: "test-secret",
	}
}

func TestS3AssetStore_Store(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store, err := NewS3AssetStore(context.Background(), s3TestConfig(server.URL), nil)
	require.NoError(t, err)

	url, err := store.Store(context.Background(), "tasks/t1/poster.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/media/tasks/t1/poster.png", url)
	assert.Equal(t, "PUT", gotMethod)
	assert.Equal(t, "/media-bucket/media/tasks/t1/poster.png", gotPath, "custom endpoints use path-style addressing")
	assert.Equal(t, "image/png", gotContentType)
	assert.Equal(t, []byte("png-bytes"), gotBody)
}

func TestS3AssetStore_UploadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`))
	}))
	defer server.Close()

	store, err := NewS3AssetStore(context.Background(), s3TestConfig(server.URL), nil)
	require.NoError(t, err)

	url, err := store.Store(context.Background(), "tasks/t1/poster.png", []byte("png-bytes"), "image/png")
	assert.Error(t, err)
	assert.Empty(t, url)
}

func TestNewS3AssetStore_RequiresBucket(t *testing.T) {
	cfg := s3TestConfig("http://127.0.0.1:0")
	cfg.Bucket = ""

	_, err := NewS3AssetStore(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)
}

func TestS3AssetStore_URLFor(t *testing.T) {
	tests := []struct {
		name string
		cfg  core.AssetsConfig
		want string
	}{
		{
			name: "public url",
			cfg:  core.AssetsConfig{Bucket: "b", PublicURL: "https://cdn.example.com"},
			want: "https://cdn.example.com/media/poster.png",
		},
		{
			name: "regional endpoint",
			cfg:  core.AssetsConfig{Bucket: "b", Region: "eu-west-1"},
			want: "https://b.s3.eu-west-1.amazonaws.com/media/poster.png",
		},
		{
			name: "no region",
			cfg:  core.AssetsConfig{Bucket: "b"},
			want: "https://b.s3.amazonaws.com/media/poster.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &S3AssetStore{cfg: tt.cfg}
			assert.Equal(t, tt.want, store.urlFor("media/poster.png"))
		})
	}
}

func TestNoopAssetStore(t *testing.T) {
	store := NewNoopAssetStore(nil)
	url, err := store.Store(context.Background(), "tasks/t1/poster.png", []byte("png-bytes"), "image/png")

	require.NoError(t, err)
	assert.Empty(t, url)
}
