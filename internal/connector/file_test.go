package connector_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpora/apps/ingest/internal/connector"
	"corpora/apps/ingest/internal/staging"
)

func TestFileIngest_PlainTextInline(t *testing.T) {
	store, err := staging.NewFSStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Upload(context.Background(), "u1/notes.md", []byte("# Heading\n\nbody text")))

	c := connector.NewFileConnector(store, "http://parser-should-not-be-called")
	frags, err := c.Ingest(context.Background(), connector.Config{UserID: "u1", BlobPath: "u1/notes.md"})
	require.NoError(t, err)
	require.Len(t, frags, 1)

	assert.Equal(t, "notes.md", frags[0].Title)
	assert.Contains(t, frags[0].Content, "body text")
	assert.Equal(t, "staging://u1/notes.md", frags[0].SourceURL)
}

func TestFileIngest_BinaryGoesThroughParser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/convert", r.URL.Path)
		require.Equal(t, "report.pdf", r.URL.Query().Get("filename"))
		_ = json.NewEncoder(w).Encode(map[string]string{"content": "extracted pdf text"})
	}))
	defer srv.Close()

	store, err := staging.NewFSStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Upload(context.Background(), "u1/report.pdf", []byte{0x25, 0x50, 0x44, 0x46}))

	c := connector.NewFileConnector(store, srv.URL)
	frags, err := c.Ingest(context.Background(), connector.Config{UserID: "u1", BlobPath: "u1/report.pdf"})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "extracted pdf text", frags[0].Content)
}

func TestFileIngest_MissingBlob(t *testing.T) {
	store, err := staging.NewFSStore(t.TempDir())
	require.NoError(t, err)

	c := connector.NewFileConnector(store, "http://unused")
	_, err = c.Ingest(context.Background(), connector.Config{BlobPath: "u1/nope.txt"})
	require.Error(t, err)
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := connector.NewRegistry(nil, nil, nil)
	_, err := r.ForKind(connector.Kind("ftp"))
	assert.ErrorIs(t, err, connector.ErrUnknownKind)

	got, err := r.ForKind(connector.KindWeb)
	require.NoError(t, err)
	assert.Nil(t, got)
}
