package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Goroutines   explained </title>
  <style>body { color: red; }</style>
  <script>var tracking = true;</script>
</head>
<body>
  <nav><a href="/">Home</a> <a href="/about">About</a></nav>
  <main>
    <h1>Concurrency in Go</h1>
    <p>Goroutines are
       lightweight threads.</p>
    <ul>
      <li>cheap to start</li>
      <li><p>scheduled by the runtime</p></li>
    </ul>
  </main>
  <footer>Copyright 2025</footer>
</body>
</html>`

func newTestFetcher(t *testing.T, handler http.HandlerFunc, opts Options) (*Fetcher, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	f := New(opts)
	f.retryDelay = time.Millisecond
	return f, server.URL
}

func TestExtractText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(samplePage))
	require.NoError(t, err)

	text := ExtractText(doc)

	assert.Equal(t, strings.Join([]string{
		"Goroutines explained",
		"Concurrency in Go",
		"Goroutines are lightweight threads.",
		"cheap to start",
		"scheduled by the runtime",
	}, "\n"), text)
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "About")
}

func TestExtractTextWithoutBlocks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>just   some <b>text</b></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "just some text", ExtractText(doc))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc\n[truncated]", Truncate("abcdef", 3))
	assert.Equal(t, "héé\n[truncated]", Truncate("hééllo", 3), "cuts on runes, not bytes")
	assert.Equal(t, "unlimited", Truncate("unlimited", 0))
}

func TestFetchURLContent(t *testing.T) {
	var hits atomic.Int32
	f, base := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}, Options{CacheTTL: time.Minute})

	content, err := f.FetchURLContent(context.Background(), base+"/article#section")
	require.NoError(t, err)
	assert.Contains(t, content, "Goroutines are lightweight threads.")

	again, err := f.FetchURLContent(context.Background(), base+"/article")
	require.NoError(t, err)
	assert.Equal(t, content, again)
	assert.Equal(t, int32(1), hits.Load(), "second fetch is served from the cache")
}

func TestFetchURLContentNoCache(t *testing.T) {
	var hits atomic.Int32
	f, base := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(samplePage))
	}, Options{})

	for i := 0; i < 2; i++ {
		_, err := f.FetchURLContent(context.Background(), base)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchURLContentMaxChars(t *testing.T) {
	f, base := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}, Options{MaxChars: 10})

	content, err := f.FetchURLContent(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, "Goroutines\n[truncated]", content)
}

func TestFetchURLContentErrors(t *testing.T) {
	t.Run("invalid urls", func(t *testing.T) {
		f := New(Options{})
		for _, raw := range []string{"", "ftp://example.com/file", "not a url", "http://", "javascript:alert(1)"} {
			_, err := f.FetchURLContent(context.Background(), raw)
			assert.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
		}
	})

	t.Run("non-200 status", func(t *testing.T) {
		f, base := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}, Options{})

		_, err := f.FetchURLContent(context.Background(), base)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("empty page", func(t *testing.T) {
		f, base := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html><body><script>only()</script></body></html>`))
		}, Options{})

		_, err := f.FetchURLContent(context.Background(), base)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no readable content")
	})

	t.Run("unreachable host is retried", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		base := server.URL
		server.Close()

		f := New(Options{Timeout: time.Second})
		f.retryDelay = time.Millisecond

		_, err := f.FetchURLContent(context.Background(), base)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})
}

func TestCache(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return now }

	_, ok := c.Get("u")
	assert.False(t, ok)

	c.Set("u", "content")
	got, ok := c.Get("u")
	assert.True(t, ok)
	assert.Equal(t, "content", got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("u")
	assert.False(t, ok, "entry expired")

	c.Set("v", "other")
	assert.Equal(t, 1, c.Len(), "expired entries are evicted on write")

	c.Clear()
	assert.Equal(t, 0, c.Len())

	disabled := NewCache(0)
	disabled.Set("u", "content")
	_, ok = disabled.Get("u")
	assert.False(t, ok)
}
