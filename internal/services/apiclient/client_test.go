package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/testutil"
)

func newTestClient(srv *httptest.Server, c *cache.TieredCache) *Client {
	return New(Options{
		BaseURL:        srv.URL,
		BearerToken:    "secret",
		Timeout:        time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		Cache:          c,
		CacheNamespace: cache.NamespaceTMDB,
		CacheTTL:       time.Minute,
	}, testutil.Logger())
}

func TestGetJSONSendsBearerAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/trending/movie/week", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`{"page":2}`))
	}))
	defer srv.Close()

	var out struct{ Page int }
	err := newTestClient(srv, nil).GetJSON(context.Background(), "/trending/movie/week", url.Values{"page": {"2"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Page)
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	err := newTestClient(srv, nil).GetJSON(context.Background(), "/x", nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGetJSONGivesUpAsTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestClient(srv, nil).GetJSON(context.Background(), "/x", nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls), "first attempt plus three retries")
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	client := newTestClient(srv, nil)

	err := client.GetJSON(context.Background(), "/missing", nil, nil)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, IsTransient(err))

	err = client.GetJSON(context.Background(), "/private", nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGetJSONUsesCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	c := cache.New(map[cache.Namespace]cache.Options{cache.NamespaceTMDB: {Duration: time.Minute, MaxEntries: 8}})
	client := newTestClient(srv, c)

	for i := 0; i < 3; i++ {
		var out struct{ ID int }
		require.NoError(t, client.GetJSON(context.Background(), "/movie/7", nil, &out))
		assert.Equal(t, 7, out.ID)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, c.Size(cache.NamespaceTMDB))
}

func TestGetJSONStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestClient(srv, nil).GetJSON(ctx, "/x", nil, nil)
	require.Error(t, err)
}
