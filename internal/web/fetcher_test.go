package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jjYBdx4IL/diskcache/internal/cache"
)

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(cache.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func staticServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRetrieveFetchesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := staticServer(t, http.StatusOK, "example content", &hits)
	store := newTestStore(t)
	f := NewFetcher(store, Options{Logger: quietLogger()})
	url := srv.URL + "/"

	_, err := store.Get(url)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	body, err := f.Retrieve(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "example content", string(body))

	cached, err := store.Get(url)
	require.NoError(t, err)
	assert.Equal(t, body, cached)

	again, err := f.Retrieve(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, body, again)
	assert.EqualValues(t, 1, hits.Load())
}

func TestRetrieveLargeBodySpills(t *testing.T) {
	var hits atomic.Int32
	large := make([]byte, 3*cache.MaxBlobSize)
	for i := range large {
		large[i] = 'a' + byte(i%26)
	}
	srv := staticServer(t, http.StatusOK, string(large), &hits)
	store := newTestStore(t)
	f := NewFetcher(store, Options{Logger: quietLogger()})

	body, err := f.Retrieve(context.Background(), srv.URL+"/big")
	require.NoError(t, err)
	assert.Equal(t, large, body)

	cached, err := store.Get(srv.URL + "/big")
	require.NoError(t, err)
	assert.Equal(t, large, cached)
}

func TestRetrieveNonSuccessStatus(t *testing.T) {
	var hits atomic.Int32
	srv := staticServer(t, http.StatusNotFound, "nope", &hits)
	store := newTestStore(t)
	f := NewFetcher(store, Options{Logger: quietLogger()})

	_, err := f.Retrieve(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	_, err = store.Get(srv.URL + "/missing")
	assert.ErrorIs(t, err, cache.ErrNotFound, "failed fetches must not be cached")
}

func TestRetrieveTransportError(t *testing.T) {
	var hits atomic.Int32
	srv := staticServer(t, http.StatusOK, "x", &hits)
	url := srv.URL + "/gone"
	srv.Close()

	f := NewFetcher(newTestStore(t), Options{Logger: quietLogger()})
	_, err := f.Retrieve(context.Background(), url)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestRetrieveRejectsNonHTTP(t *testing.T) {
	f := NewFetcher(newTestStore(t), Options{Logger: quietLogger()})
	_, err := f.Retrieve(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)
}

func TestRetrieveSendsBearerToken(t *testing.T) {
	var mu sync.Mutex
	var auth, ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth, ua = r.Header.Get("Authorization"), r.Header.Get("User-Agent")
		mu.Unlock()
		_, _ = io.WriteString(w, "secret")
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(newTestStore(t), Options{
		UserAgent:   "diskcache-test",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
		Logger:      quietLogger(),
	})
	body, err := f.Retrieve(context.Background(), srv.URL+"/private")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(body))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "diskcache-test", ua)
}

func TestRetrieveCanceledContext(t *testing.T) {
	var hits atomic.Int32
	srv := staticServer(t, http.StatusOK, "x", &hits)
	f := NewFetcher(newTestStore(t), Options{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Retrieve(ctx, srv.URL+"/")
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, hits.Load())
}

func TestRetrieveSharedDownloadSurvivesCallerCancel(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		_, _ = io.WriteString(w, "slow body")
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	store := newTestStore(t)
	f := NewFetcher(store, Options{Logger: quietLogger()})
	url := srv.URL + "/slow"

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.Retrieve(ctx, url)
		first <- err
	}()
	<-started

	second := make(chan []byte, 1)
	go func() {
		body, err := f.Retrieve(context.Background(), url)
		assert.NoError(t, err)
		second <- body
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	assert.Equal(t, "slow body", string(<-second))

	cached, err := store.Get(url)
	require.NoError(t, err)
	assert.Equal(t, "slow body", string(cached))
}
