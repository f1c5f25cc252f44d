package models

import (
	"fmt"
	"strings"
)

// MediaType represents the type of media (movie or tv show)
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// ParseMediaType accepts the spellings used by clients ("tv", "series", "show")
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return MediaTypeMovie, nil
	case "tv", "series", "show", "shows", "tvshow", "tvshows":
		return MediaTypeTV, nil
	}
	return "", fmt.Errorf("unknown media type %q", s)
}

// Path returns the segment used in image proxy paths
func (t MediaType) Path() string {
	if t == MediaTypeTV {
		return "tv"
	}
	return "movie"
}

// IDType selects which identifier a lookup uses
type IDType string

const (
	IDTypeIMDB IDType = "imdb"
	IDTypeTMDB IDType = "tmdb"
)

// UpsertOptions tunes how UpsertMedia reconciles with a stored row
type UpsertOptions struct {
	// KeepTrending leaves is_trending on an existing row untouched
	KeepTrending bool
	// KeepQuality leaves quality on an existing row untouched. Trending
	// records carry no listing quality, only the default.
	KeepQuality bool
}
