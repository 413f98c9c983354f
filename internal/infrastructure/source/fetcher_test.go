package source

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/config"
	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/pkg/errors"
)

const featureCollection = `{"type":"FeatureCollection","features":[]}`

func newTestFetcher(t *testing.T, cfg config.FetchConfig) *fetcher {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return NewSourceFetcher(&cfg, zap.NewNop()).(*fetcher)
}

func urlDataset(url string) *domain.Dataset {
	return &domain.Dataset{ID: 1, SourceKind: domain.SourceURL, SourceRef: url, URLMode: domain.URLModeImport}
}

func TestFetcher_URL(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "openkaarten-test", r.Header.Get("User-Agent"))
			w.Write([]byte(featureCollection))
		}))
		defer server.Close()

		f := newTestFetcher(t, config.FetchConfig{UserAgent: "openkaarten-test"})
		body, err := f.Fetch(context.Background(), urlDataset(server.URL))

		require.NoError(t, err)
		assert.Equal(t, featureCollection, string(body))
	})

	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		f := newTestFetcher(t, config.FetchConfig{})
		body, err := f.Fetch(context.Background(), urlDataset(server.URL))

		assert.Nil(t, body)
		assert.True(t, stderrors.Is(err, errors.ErrFetchFailed))
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("empty body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("  \n"))
		}))
		defer server.Close()

		f := newTestFetcher(t, config.FetchConfig{})
		_, err := f.Fetch(context.Background(), urlDataset(server.URL))

		assert.True(t, stderrors.Is(err, errors.ErrFetchFailed))
	})

	t.Run("body over the limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(featureCollection))
		}))
		defer server.Close()

		f := newTestFetcher(t, config.FetchConfig{MaxBytes: 10})
		_, err := f.Fetch(context.Background(), urlDataset(server.URL))

		assert.True(t, stderrors.Is(err, errors.ErrFetchFailed))
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte(featureCollection))
		}))
		defer server.Close()

		f := newTestFetcher(t, config.FetchConfig{Timeout: 50 * time.Millisecond})
		_, err := f.Fetch(context.Background(), urlDataset(server.URL))

		assert.True(t, stderrors.Is(err, errors.ErrFetchFailed))
	})
}

func TestFetcher_Retry(t *testing.T) {
	t.Run("single attempt by default", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		f := newTestFetcher(t, config.FetchConfig{})
		_, err := f.Fetch(context.Background(), urlDataset(server.URL))

		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("bounded retry on server errors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(featureCollection))
		}))
		defer server.Close()

		f := newTestFetcher(t, config.FetchConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
		body, err := f.Fetch(context.Background(), urlDataset(server.URL))

		require.NoError(t, err)
		assert.Equal(t, featureCollection, string(body))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		f := newTestFetcher(t, config.FetchConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
		_, err := f.Fetch(context.Background(), urlDataset(server.URL))

		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestFetcher_File(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2024"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024", "parks.geojson"), []byte(featureCollection), 0o644))

	f := newTestFetcher(t, config.FetchConfig{FilesDir: dir})

	t.Run("reads attachment", func(t *testing.T) {
		body, err := f.Fetch(context.Background(), &domain.Dataset{SourceKind: domain.SourceFile, SourceRef: "2024/parks.geojson"})
		require.NoError(t, err)
		assert.Equal(t, featureCollection, string(body))
	})

	t.Run("path traversal stays inside the files dir", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), &domain.Dataset{SourceKind: domain.SourceFile, SourceRef: "../../etc/passwd"})
		assert.True(t, stderrors.Is(err, errors.ErrFetchFailed))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), &domain.Dataset{SourceKind: domain.SourceFile, SourceRef: "missing.kml"})
		assert.True(t, stderrors.Is(err, errors.ErrFetchFailed))
	})

	t.Run("no file attached", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), &domain.Dataset{SourceKind: domain.SourceFile})
		assert.True(t, stderrors.Is(err, errors.ErrFetchFailed))
	})
}

func TestUnwrapEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"data array", `{"data":[{"lat":1,"lon":2}],"meta":{}}`, `[{"lat":1,"lon":2}]`},
		{"results array", `{"results": [1]}`, `[1]`},
		{"geojson untouched", `{"type":"FeatureCollection","data":[1],"features":[]}`, `{"type":"FeatureCollection","data":[1],"features":[]}`},
		{"object data untouched", `{"data":{"lat":1}}`, `{"data":{"lat":1}}`},
		{"array untouched", `[1,2]`, `[1,2]`},
		{"xml untouched", `<kml/>`, `<kml/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(unwrapEnvelope([]byte(tt.input))))
		})
	}
}
