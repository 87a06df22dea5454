package webcrawl_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpora/apps/ingest/internal/webcrawl"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Release Notes</title></head>
<body>
<nav><a href="/ignored-by-extraction">nav link</a></nav>
<article>
<h1>Version 2.0</h1>
<p>This release adds incremental sync.</p>
<a href="/changelog">changelog</a>
<a href="https://other.example.org/external">external</a>
<a href="#section">fragment</a>
<a href="mailto:dev@example.com">mail</a>
</article>
<footer>copyright</footer>
</body>
</html>`

func TestFetch_ExtractsTitleContentLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := webcrawl.NewFetcher("test-agent").Fetch(context.Background(), srv.URL+"/notes")
	require.NoError(t, err)

	assert.Equal(t, "Release Notes", page.Title)
	assert.Contains(t, page.Content, "incremental sync")
	assert.NotContains(t, page.Content, "copyright")

	assert.Contains(t, page.Links, srv.URL+"/changelog")
	assert.Contains(t, page.Links, "https://other.example.org/external")
	for _, l := range page.Links {
		assert.NotContains(t, l, "mailto:")
		assert.NotContains(t, l, "#")
	}
}

func TestFetch_NotFoundIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	_, err := webcrawl.NewFetcher("test-agent").Fetch(context.Background(), srv.URL+"/gone")
	require.Error(t, err)
}

func TestFetch_SendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	_, err := webcrawl.NewFetcher("corpora-ingest/1.0").Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "corpora-ingest/1.0", got)
}
