package vidsrc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/testutil"
)

func TestLatest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/movies/latest/page-1.json":
			w.Write([]byte(`{"result":[
				{"imdb_id":"tt1","quality":"1080p","title":"One"},
				{"imdb_id":"","title":"No id"},
				{"imdb_id":"tt2","title":"Two"}
			]}`))
		case "/tvshows/latest/page-2.json":
			w.Write([]byte(`{"result":[{"imdb_id":"tt3","title":"Show"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := cache.New(map[cache.Namespace]cache.Options{cache.NamespaceVidSrc: {Duration: time.Minute}})
	defer c.Close()
	client := NewClient(&config.Config{
		VidSrcBaseURL:  srv.URL + "/",
		RequestTimeout: time.Second,
		RetryBaseDelay: time.Millisecond,
		CacheVidSrc:    time.Minute,
	}, c, testutil.Logger())
	ctx := context.Background()

	movies, err := client.Latest(ctx, models.MediaTypeMovie, 1)
	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, Stub{IMDBID: "tt1", Quality: "HD", Title: "One"}, movies[0])
	assert.Equal(t, "HD", movies[1].Quality)

	shows, err := client.Latest(ctx, models.MediaTypeTV, 2)
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, "tt3", shows[0].IMDBID)

	// served from cache
	_, err = client.Latest(ctx, models.MediaTypeMovie, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	_, err = client.Latest(ctx, models.MediaTypeMovie, 9)
	assert.Error(t, err)
}
