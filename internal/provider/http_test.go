package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/BRCal/internal/infra/cache"
)

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><h1>ok</h1></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/consent?return=/blocked", http.StatusFound)
	})
	mux.HandleFunc("/consent", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>Bitte zustimmen</html>"))
	})
	mux.HandleFunc("/challenge", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<form id="challenge-form"></form>`))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := HTTPFetcher{Client: srv.Client()}
	assert.Equal(t, "http", f.Name())

	b, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, string(b), "<h1>ok</h1>")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	var se *HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	for p, reason := range map[string]string{"/blocked": BlockReasonConsent, "/challenge": BlockReasonChallenge} {
		_, err = f.Fetch(context.Background(), srv.URL+p)
		var be *BlockedError
		if assert.ErrorAs(t, err, &be, "path=%s", p) {
			assert.Equal(t, reason, be.Reason, "path=%s", p)
			assert.Equal(t, "blocked_"+reason, be.Code(), "path=%s", p)
		}
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/empty")
	assert.Error(t, err)
}

func TestCachingFetcher(t *testing.T) {
	t.Parallel()

	next := &stubFetcher{name: "http", html: []byte("<html/>")}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	f := CachingFetcher{
		Next:      next,
		Store:     cache.New(afero.NewMemMapFs(), "/data"),
		Clock:     clock,
		Cacheable: func(u string) bool { return u != "https://bluray-disc.de/4k-uhd/kalender" },
	}
	assert.Equal(t, "http", f.Name())

	for i := 0; i < 3; i++ {
		b, err := f.Fetch(context.Background(), testURL)
		require.NoError(t, err)
		assert.Equal(t, "<html/>", string(b))
	}
	assert.Equal(t, 1, next.calls, "详情页应只抓一次")

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), "https://bluray-disc.de/4k-uhd/kalender")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, next.calls, "不可缓存页面每次都应抓取")
}

func TestCachingFetcher_ErrorNotCached(t *testing.T) {
	t.Parallel()

	next := &stubFetcher{name: "http", err: errors.New("boom")}
	f := CachingFetcher{Next: next, Store: cache.New(afero.NewMemMapFs(), "/data")}

	_, err := f.Fetch(context.Background(), testURL)
	require.Error(t, err)
	_, err = f.Fetch(context.Background(), testURL)
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
}
