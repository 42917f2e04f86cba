package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ByLCY/adsmith/config"
)

func TestNameValidation(t *testing.T) {
	assert.NoError(t, checkContainer("feeds"))
	assert.NoError(t, checkContainer("org-1.feeds"))
	assert.ErrorIs(t, checkContainer("Feeds"), ErrInvalidContainer)
	assert.ErrorIs(t, checkContainer("ab"), ErrInvalidContainer)
	assert.ErrorIs(t, checkContainer("-feeds"), ErrInvalidContainer)

	assert.NoError(t, checkName("a.png"))
	assert.NoError(t, checkName("2026/10/a.png"))
	assert.ErrorIs(t, checkName(""), ErrInvalidName)
	assert.ErrorIs(t, checkName("../a.png"), ErrInvalidName)
	assert.ErrorIs(t, checkName("dir/"), ErrInvalidName)
	assert.ErrorIs(t, checkName("/abs.png"), ErrInvalidName)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://cdn/feeds/a%20b.png", joinURL("http://cdn/", "feeds", "a b.png"))
	assert.Equal(t, "http://cdn/feeds/x/y.png", joinURL("http://cdn", "feeds", "x/y.png"))
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	url, err := s.Upload(context.Background(), "feeds", "a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "memory://feeds/a.png", url)

	blob, ok := s.Get("feeds", "a.png")
	require.True(t, ok)
	assert.Equal(t, []byte("png"), blob.Data)
	assert.Equal(t, "image/png", blob.ContentType)
	assert.Equal(t, 1, s.Len("feeds"))

	_, err = s.Upload(context.Background(), "NO", "a.png", nil, "")
	assert.ErrorIs(t, err, ErrInvalidContainer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Upload(ctx, "feeds", "b.png", nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStorage(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStorage(root, "http://localhost:8080/files", zaptest.NewLogger(t))
	require.NoError(t, err)

	url, err := s.Upload(context.Background(), "feeds", "a.png", []byte("one"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/feeds/a.png", url)

	// 同名覆盖，容器重复创建不报错
	_, err = s.Upload(context.Background(), "feeds", "a.png", []byte("two"), "image/png")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "feeds", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "feeds"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")

	_, err = NewFileStorage("", "", nil)
	assert.Error(t, err)
}

func TestNewSelectsDriver(t *testing.T) {
	s, err := New(config.StorageConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	s, err = New(config.StorageConfig{Driver: "filesystem", LocalPath: t.TempDir(), PublicBaseURL: "http://x"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, s)

	_, err = New(config.StorageConfig{Driver: "s3"}, nil)
	assert.Error(t, err, "s3 requires credentials")

	_, err = New(config.StorageConfig{Driver: "gcs"}, nil)
	assert.Error(t, err)
}

// fakeS3 answers the three calls the backend makes with path-style addressing.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]string
	creates int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 1:
		f.buckets[bucket] = true
		f.creates++
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 2:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+parts[1]] = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3StorageUpload(t *testing.T) {
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := NewS3Storage(config.StorageConfig{
		Endpoint:     srv.URL,
		AccessKey:    "key",
		SecretKey:    "secret",
		UsePathStyle: true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	url, err := s.Upload(context.Background(), "feeds", "a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/feeds/a.png", url)

	_, err = s.Upload(context.Background(), "feeds", "b.png", []byte("png2"), "image/png")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.creates, "bucket is created once")
	assert.Contains(t, fake.objects["feeds/a.png"], "png")
	assert.Len(t, fake.objects, 2)
}

func TestS3URL(t *testing.T) {
	s, err := NewS3Storage(config.StorageConfig{AccessKey: "k", SecretKey: "s", Region: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "https://feeds.s3.eu-west-1.amazonaws.com/a.png", s.URL("feeds", "a.png"))

	s, err = NewS3Storage(config.StorageConfig{AccessKey: "k", SecretKey: "s", PublicBaseURL: "https://cdn.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/feeds/a.png", s.URL("feeds", "a.png"))
}
