package tmdb

import (
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/utils"
)

// Movie converts a movie detail into a catalog row
func (d *Detail) Movie(imdbID, quality string) *models.Movie {
	return &models.Movie{
		IMDBID:       imdbID,
		TMDBID:       models.Int64Ptr(d.ProviderID),
		Title:        d.Title,
		Overview:     d.Overview,
		ReleaseDate:  d.Date,
		Year:         d.Year,
		Rating:       d.Rating,
		Duration:     d.Duration,
		Genres:       models.Genres(d.Genres),
		PosterPath:   d.PosterPath,
		BackdropPath: d.BackdropPath,
		VoteAverage:  d.VoteAverage,
		VoteCount:    d.VoteCount,
		Popularity:   d.Popularity,
		Quality:      utils.NormalizeQuality(quality),
	}
}

// TVShow converts a series detail into a catalog row
func (d *Detail) TVShow(imdbID string) *models.TVShow {
	return &models.TVShow{
		IMDBID:          imdbID,
		TMDBID:          models.Int64Ptr(d.ProviderID),
		Title:           d.Title,
		Overview:        d.Overview,
		FirstAirDate:    d.Date,
		Year:            d.Year,
		Rating:          d.Rating,
		Genres:          models.Genres(d.Genres),
		NumberOfSeasons: d.NumberOfSeasons,
		PosterPath:      d.PosterPath,
		BackdropPath:    d.BackdropPath,
		VoteAverage:     d.VoteAverage,
		VoteCount:       d.VoteCount,
		Popularity:      d.Popularity,
	}
}

// Record converts the detail into the row type matching its kind
func (d *Detail) Record(imdbID, quality string) models.Media {
	if d.Kind == models.MediaTypeTV {
		return d.TVShow(imdbID)
	}
	return d.Movie(imdbID, quality)
}
