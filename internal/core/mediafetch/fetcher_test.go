package mediafetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher() *Fetcher {
	f := NewFetcher(testLogger())
	f.client.RetryMax = 0
	f.client.HTTPClient.Timeout = 2 * time.Second
	return f
}

func TestFetchExtractsOpenGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><head>
<meta property="og:title" content="OG Title" />
<meta property="og:image" content="/img/hero.jpg" />
<link rel="icon" href="/static/icon.png">
<title>Tag Title</title>
</head><body></body></html>`)
	}))
	defer srv.Close()

	media, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, "OG Title", media.Title)
	assert.Equal(t, srv.URL+"/img/hero.jpg", media.ThumbnailURL, "relative og:image resolved against the page")
	assert.Equal(t, srv.URL+"/static/icon.png", media.FaviconURL)
}

func TestFetchFallsBackToTitleTagAndDefaultFavicon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><head><title>  Plain Title  </title></head><body></body></html>`)
	}))
	defer srv.Close()

	media, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Plain Title", media.Title)
	assert.Equal(t, srv.URL+"/favicon.ico", media.FaviconURL)
	assert.Empty(t, media.ThumbnailURL)
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(ctx, srv.URL)
		require.Error(t, err)
	}

	// Circuit is open now; the next attempt is refused without a request.
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestCircuitRecovers(t *testing.T) {
	logger := testLogger()
	cb := newCircuitBreaker(logger)
	cb.openDuration = 10 * time.Millisecond

	failure := errors.New("connection refused")
	for i := 0; i < 3; i++ {
		cb.recordFailure("bad.example.com", failure)
	}
	ok, err := cb.canAttempt("bad.example.com")
	require.False(t, ok)
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)

	ok, _ = cb.canAttempt("bad.example.com")
	assert.True(t, ok, "half-open after the cool-off")

	cb.recordSuccess("bad.example.com")
	ok, _ = cb.canAttempt("bad.example.com")
	assert.True(t, ok)
}

func TestCircuitIsPerHost(t *testing.T) {
	cb := newCircuitBreaker(testLogger())
	failure := errors.New("timeout")
	for i := 0; i < 3; i++ {
		cb.recordFailure("down.example.com", failure)
	}

	ok, _ := cb.canAttempt("down.example.com")
	assert.False(t, ok)
	ok, _ = cb.canAttempt("up.example.com")
	assert.True(t, ok)
}
