package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("http://localhost:8080/files")

	obj, err := s.Put(ctx, "f1/avatar.png", "image/png", []byte("PNG"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), obj.Size)
	assert.Equal(t, "http://localhost:8080/files/f1/avatar.png", obj.URL)

	rc, err := s.Get(ctx, "f1/avatar.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "PNG", string(data))

	require.NoError(t, s.Delete(ctx, "f1/avatar.png"))
	require.NoError(t, s.Delete(ctx, "f1/avatar.png"), "deleting twice is fine")

	_, err = s.Get(ctx, "f1/avatar.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Zero(t, s.Len())
}

func TestMemoryStoreCopiesData(t *testing.T) {
	s := NewMemoryStore("")
	data := []byte("abc")
	_, err := s.Put(context.Background(), "k", "text/plain", data)
	require.NoError(t, err)

	data[0] = 'z'
	rc, _ := s.Get(context.Background(), "k")
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryStoreRequiresKey(t *testing.T) {
	_, err := NewMemoryStore("").Put(context.Background(), "", "text/plain", nil)
	assert.Error(t, err)
}

func TestSpacesStoreKeysAndURLs(t *testing.T) {
	s, err := NewSpacesStore(SpacesConfig{
		Endpoint:  "nyc3.digitaloceanspaces.com",
		Region:    "us-east-1",
		Bucket:    "nest-uploads",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	at := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "uploads/2026-03-04/f1/a.png", s.ObjectKey("f1/a.png", at))
	assert.Equal(t, "https://nest-uploads.nyc3.digitaloceanspaces.com", s.publicURL)
}

func TestNewSpacesStoreRequiresBucket(t *testing.T) {
	_, err := NewSpacesStore(SpacesConfig{Endpoint: "nyc3.digitaloceanspaces.com"})
	assert.Error(t, err)
}

func TestSpacesConfigFromEnv(t *testing.T) {
	t.Setenv("SPACES_BUCKET", "")
	_, enabled := NewSpacesConfigFromEnv()
	assert.False(t, enabled)

	t.Setenv("SPACES_BUCKET", "nest-uploads")
	t.Setenv("SPACES_PATH_PREFIX", "dev/")
	cfg, enabled := NewSpacesConfigFromEnv()
	assert.True(t, enabled)
	assert.Equal(t, "dev/", cfg.PathPrefix)
	assert.Equal(t, "nyc3.digitaloceanspaces.com", cfg.Endpoint)
}
