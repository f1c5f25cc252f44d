package controllers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/models"
)

// ImageVariant selects poster or backdrop artwork
type ImageVariant string

const (
	VariantPoster   ImageVariant = "poster"
	VariantBackdrop ImageVariant = "backdrop"
)

// ParseImageVariant accepts "poster" or "backdrop"
func ParseImageVariant(s string) (ImageVariant, error) {
	switch ImageVariant(s) {
	case VariantPoster, VariantBackdrop:
		return ImageVariant(s), nil
	}
	return "", fmt.Errorf("image variant %q: %w", s, ErrInvalidInput)
}

func (v ImageVariant) namespace() cache.Namespace {
	if v == VariantBackdrop {
		return cache.NamespaceBackdrops
	}
	return cache.NamespacePosters
}

func imageKey(variant ImageVariant, kind models.MediaType, tmdbID int64) string {
	return fmt.Sprintf("%s_%d_%s", kind.Path(), tmdbID, variant)
}

// proxyPath is the local URL the UI requests artwork through
func proxyPath(variant ImageVariant, kind models.MediaType, tmdbID int64) string {
	return fmt.Sprintf("/%s/%s/%d", variant, kind.Path(), tmdbID)
}

// rememberImages records known paths so the image proxy can skip the lookup
func (c *CatalogController) rememberImages(kind models.MediaType, tmdbID int64, poster, backdrop string) {
	if poster != "" {
		c.cache.Set(cache.NamespacePosters, imageKey(VariantPoster, kind, tmdbID), poster)
	}
	if backdrop != "" {
		c.cache.Set(cache.NamespaceBackdrops, imageKey(VariantBackdrop, kind, tmdbID), backdrop)
	}
}

// PosterURL returns the CDN poster URL for a title, or "" when it has none
func (c *CatalogController) PosterURL(ctx context.Context, kind models.MediaType, tmdbID int64) string {
	u, _ := c.ImageURL(ctx, VariantPoster, kind, tmdbID)
	return u
}

// BackdropURL returns the CDN backdrop URL for a title, or "" when it has none
func (c *CatalogController) BackdropURL(ctx context.Context, kind models.MediaType, tmdbID int64) string {
	u, _ := c.ImageURL(ctx, VariantBackdrop, kind, tmdbID)
	return u
}

// ImageURL resolves artwork through the cache, then the catalog row, then
// the provider's image list. Each tier that finds a path fills the cache.
// An empty result is cached too, so a title with no artwork is not looked
// up again until the entry expires. Provider failures are not cached.
func (c *CatalogController) ImageURL(ctx context.Context, variant ImageVariant, kind models.MediaType, tmdbID int64) (string, bool) {
	path := c.imagePath(ctx, variant, kind, tmdbID)
	if path == "" {
		return "", false
	}
	base := c.opts.ImageBaseURL
	if variant == VariantBackdrop {
		base = c.opts.BackdropBaseURL
	}
	return base + path, true
}

func (c *CatalogController) imagePath(ctx context.Context, variant ImageVariant, kind models.MediaType, tmdbID int64) string {
	ns, key := variant.namespace(), imageKey(variant, kind, tmdbID)
	if v, ok := c.cache.Fresh(ns, key); ok {
		if path, ok := v.(string); ok {
			return path
		}
	}

	v, _, _ := c.images.Do(key, func() (any, error) {
		path := c.storedImagePath(variant, kind, tmdbID)
		if path == "" {
			var err error
			if path, err = c.providerImagePath(ctx, variant, kind, tmdbID); err != nil {
				c.logger.WithError(err).WithField("tmdb_id", tmdbID).Debug("Image lookup failed")
				return "", nil
			}
		}
		c.cache.Set(ns, key, path)
		return path, nil
	})
	path, _ := v.(string)
	return path
}

func (c *CatalogController) storedImagePath(variant ImageVariant, kind models.MediaType, tmdbID int64) string {
	rec, err := c.db.FindMedia(kind, models.IDTypeTMDB, strconv.FormatInt(tmdbID, 10))
	if err != nil {
		return ""
	}
	if variant == VariantBackdrop {
		return rec.GetBackdropPath()
	}
	return rec.GetPosterPath()
}

func (c *CatalogController) providerImagePath(ctx context.Context, variant ImageVariant, kind models.MediaType, tmdbID int64) (string, error) {
	if c.provider == nil {
		return "", nil
	}
	images, err := c.provider.GetImages(ctx, tmdbID, kind)
	if err != nil {
		return "", err
	}
	if variant == VariantBackdrop {
		return images.BestBackdrop(""), nil
	}
	return images.BestPoster(""), nil
}
