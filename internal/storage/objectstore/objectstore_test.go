package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

type recordedRequest struct {
	Method string
	Path   string
	Type   string
}

// fakeS3 answers bucket and object requests with a fixed set of statuses.
type fakeS3 struct {
	mu           sync.Mutex
	requests     []recordedRequest
	bucketExists bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Type: r.Header.Get("Content-Type")})
	exists := f.bucketExists
	if r.Method == http.MethodPut && strings.TrimSuffix(r.URL.Path, "/") == "/images" {
		f.bucketExists = true
	}
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodHead && !exists:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeS3) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestStore(t *testing.T, srv *httptest.Server) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		Bucket:       "images",
		AccessKey:    "test",
		SecretKey:    "test-secret",
		UsePathStyle: true,
	}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return store
}

// --- Tests ---

func TestConfig_Validate(t *testing.T) {
	valid := Config{Bucket: "images", AccessKey: "a", SecretKey: "s", Endpoint: "http://localhost:9000"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no bucket", mutate: func(c *Config) { c.Bucket = "" }},
		{name: "no access key", mutate: func(c *Config) { c.AccessKey = "" }},
		{name: "no secret key", mutate: func(c *Config) { c.SecretKey = "" }},
		{name: "bad scheme", mutate: func(c *Config) { c.Endpoint = "ftp://localhost" }},
		{name: "no scheme", mutate: func(c *Config) { c.Endpoint = "localhost:9000" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestPublicBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "explicit",
			cfg:  Config{PublicBaseURL: "https://cdn.example.com/img/", Endpoint: "http://minio:9000", Bucket: "images"},
			want: "https://cdn.example.com/img",
		},
		{
			name: "path style",
			cfg:  Config{Endpoint: "http://minio:9000", Bucket: "images", UsePathStyle: true},
			want: "http://minio:9000/images",
		},
		{
			name: "virtual host",
			cfg:  Config{Endpoint: "https://storage.example.com", Bucket: "images"},
			want: "https://images.storage.example.com",
		},
		{
			name: "aws",
			cfg:  Config{Bucket: "images", Region: "eu-west-1"},
			want: "https://images.s3.eu-west-1.amazonaws.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicBaseURL(tt.cfg))
		})
	}
}

func TestStore_PutDelete(t *testing.T) {
	fake := &fakeS3{bucketExists: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	store := newTestStore(t, srv)

	url, err := store.Put(context.Background(), "products/p-1/0-a.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/images/products/p-1/0-a.png", url)

	require.NoError(t, store.Delete(context.Background(), "products/p-1/0-a.png"))

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/images/products/p-1/0-a.png", reqs[0].Path)
	assert.Equal(t, "image/png", reqs[0].Type)
	assert.Equal(t, http.MethodDelete, reqs[1].Method)
}

func TestStore_EnsureBucket(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	store := newTestStore(t, srv)

	require.NoError(t, store.EnsureBucket(context.Background()))
	require.NoError(t, store.Ping(context.Background()))

	reqs := fake.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, http.MethodHead, reqs[0].Method)
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Equal(t, "/images", strings.TrimSuffix(reqs[1].Path, "/"))
	assert.Equal(t, http.MethodHead, reqs[2].Method)
}
