package retriever

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

type mapStore map[string][]byte

func (m mapStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m[key]
	if !ok {
		return nil, models.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestFetchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.pdf":
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("%PDF-1.7 body"))
		case "/big.pdf":
			_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
		case "/busy.pdf":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := New(logger.NewNop(), nil, Config{MaxBytes: 32})

	data, err := r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceURL, Locator: srv.URL + "/ok.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 body", string(data))

	_, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceURL, Locator: srv.URL + "/missing.pdf"})
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)

	_, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceURL, Locator: srv.URL + "/busy.pdf"})
	assert.ErrorIs(t, err, models.ErrSourceNetwork)

	_, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceURL, Locator: srv.URL + "/big.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 32 bytes")

	_, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceURL, Locator: "ftp://example.org/a.pdf"})
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestFetchURLUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone.pdf"
	srv.Close()

	_, err := New(logger.NewNop(), nil, Config{}).Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceURL, Locator: url})
	assert.ErrorIs(t, err, models.ErrSourceNetwork)
}

func TestFetchObjectStore(t *testing.T) {
	store := mapStore{"batches/a.pdf": []byte("%PDF a")}
	r := New(logger.NewNop(), store, Config{})

	data, err := r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceObjectStore, Locator: "s3://docs/batches/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF a", string(data))

	data, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceObjectStore, Locator: "batches/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF a", string(data))

	_, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceObjectStore, Locator: "batches/b.pdf"})
	assert.ErrorIs(t, err, models.ErrObjectNotFound)

	_, err = New(logger.NewNop(), nil, Config{}).Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceObjectStore, Locator: "a"})
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestFetchLocalConfined(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "circulars"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "circulars", "c1.pdf"), []byte("%PDF c1"), 0o600))

	r := New(logger.NewNop(), nil, Config{LocalBaseDir: dir})

	data, err := r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceLocal, Locator: "circulars/c1.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF c1", string(data))

	data, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceLocal, Locator: filepath.Join(dir, "circulars", "c1.pdf")})
	require.NoError(t, err)
	assert.Equal(t, "%PDF c1", string(data))

	for _, locator := range []string{"../outside.pdf", "circulars/../../etc/passwd", "/etc/passwd"} {
		_, err := r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceLocal, Locator: locator})
		require.Error(t, err, locator)
		assert.True(t, strings.Contains(err.Error(), "outside"), locator)
	}

	_, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceLocal, Locator: "circulars/none.pdf"})
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)

	_, err = New(logger.NewNop(), nil, Config{}).Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceLocal, Locator: "c1.pdf"})
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestFetchInline(t *testing.T) {
	r := New(logger.NewNop(), nil, Config{})

	data, err := r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceInline, Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: models.SourceInline})
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)

	_, err = r.Fetch(context.Background(), models.DocumentRef{SourceKind: "ftp"})
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "a/b.pdf", objectKey("s3://bucket/a/b.pdf"))
	assert.Equal(t, "a/b.pdf", objectKey("minio://bucket/a/b.pdf"))
	assert.Equal(t, "a/b.pdf", objectKey("/a/b.pdf"))
	assert.Equal(t, "bucket", objectKey("s3://bucket"))
}
