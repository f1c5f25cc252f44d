package vidsrc

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/apiclient"
	"github.com/amaumene/homeflix/internal/utils"
)

// Stub is one entry of a latest listing, enriched later from TMDB
type Stub struct {
	IMDBID  string `json:"imdb_id"`
	Quality string `json:"quality"`
	Title   string `json:"title"`
}

// Client reads the VidSrc latest listings
type Client struct {
	api    *apiclient.Client
	logger *logrus.Logger
}

// NewClient creates a listing client. Pages are cached in the vidsrc namespace.
func NewClient(cfg *config.Config, c *cache.TieredCache, logger *logrus.Logger) *Client {
	return &Client{
		api: apiclient.New(apiclient.Options{
			BaseURL:         strings.TrimRight(cfg.VidSrcBaseURL, "/"),
			Timeout:         cfg.RequestTimeout,
			MaxRetries:      cfg.MaxRetries,
			RetryBaseDelay:  cfg.RetryBaseDelay,
			RetryMultiplier: cfg.RetryMultiplier,
			Cache:           c,
			CacheNamespace:  cache.NamespaceVidSrc,
			CacheTTL:        cfg.CacheVidSrc,
		}, logger),
		logger: logger,
	}
}

// Latest returns one page of recently added titles of the given kind.
// Entries without an IMDB id are dropped.
func (c *Client) Latest(ctx context.Context, kind models.MediaType, page int) ([]Stub, error) {
	if page < 1 {
		page = 1
	}
	section := "movies"
	if kind == models.MediaTypeTV {
		section = "tvshows"
	}

	var resp struct {
		Result []Stub `json:"result"`
	}
	path := fmt.Sprintf("/%s/latest/page-%d.json", section, page)
	if err := c.api.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get latest %s page %d: %w", section, page, err)
	}

	stubs := make([]Stub, 0, len(resp.Result))
	for _, s := range resp.Result {
		s.IMDBID = strings.TrimSpace(s.IMDBID)
		if s.IMDBID == "" {
			c.logger.WithField("title", s.Title).Debug("Skipping listing entry without imdb id")
			continue
		}
		s.Quality = utils.NormalizeQuality(s.Quality)
		stubs = append(stubs, s)
	}

	c.logger.WithFields(logrus.Fields{
		"kind":  kind,
		"page":  page,
		"count": len(stubs),
	}).Debug("Fetched latest listing")
	return stubs, nil
}
