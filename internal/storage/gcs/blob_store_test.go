package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := Dial(context.Background(), Config{Bucket: "reports"},
		option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	const name = "2025/03/01/eval-1.json"
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/reports/o")
		assert.Equal(t, name, r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `{"id":"eval-1"}`)
		assert.Contains(t, string(body), "application/json")
		_, _ = fmt.Fprintf(w, `{"name":%q,"bucket":"reports"}`, name)
	}))

	uri, err := store.PutObject(context.Background(), name, "application/json", strings.NewReader(`{"id":"eval-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "gs://reports/"+name, uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := store.PutObject(context.Background(), "eval.json", "application/json", strings.NewReader("{}"))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("{}"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
