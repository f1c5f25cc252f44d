package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Genres is a list of genre names stored as a JSON array
type Genres []string

// Value implements driver.Valuer
func (g Genres) Value() (driver.Value, error) {
	if g == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(g))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (g *Genres) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*g = Genres{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Genres", src)
	}
	if len(raw) == 0 {
		*g = Genres{}
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(g))
}

// Media is the behaviour shared by Movie and TVShow rows
type Media interface {
	Kind() MediaType
	GetID() uint
	GetIMDBID() string
	GetTMDBID() *int64
	GetTitle() string
	GetPosterPath() string
	GetBackdropPath() string
	GetPopularity() float64
	Trending() bool
}

// Movie is a catalog row in the movies table
type Movie struct {
	ID           uint   `gorm:"primaryKey"`
	IMDBID       string `gorm:"column:imdb_id;uniqueIndex;not null"`
	TMDBID       *int64 `gorm:"column:tmdb_id;uniqueIndex"`
	Title        string `gorm:"not null"`
	Overview     string
	ReleaseDate  string
	Year         string
	Rating       string
	Duration     string
	Genres       Genres `gorm:"type:text"`
	PosterPath   string
	BackdropPath string
	VoteAverage  float64
	VoteCount    int
	Popularity   float64
	Quality      string
	IsTrending   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Movie) TableName() string { return "movies" }

func (m *Movie) Kind() MediaType         { return MediaTypeMovie }
func (m *Movie) GetID() uint             { return m.ID }
func (m *Movie) GetIMDBID() string       { return m.IMDBID }
func (m *Movie) GetTMDBID() *int64       { return m.TMDBID }
func (m *Movie) GetTitle() string        { return m.Title }
func (m *Movie) GetPosterPath() string   { return m.PosterPath }
func (m *Movie) GetBackdropPath() string { return m.BackdropPath }
func (m *Movie) GetPopularity() float64  { return m.Popularity }
func (m *Movie) Trending() bool          { return m.IsTrending }
func (m *Movie) imdbKey() string         { return m.IMDBID }
func (m *Movie) primaryKey() uint        { return m.ID }
func (m *Movie) setTrending(v bool)      { m.IsTrending = v }
func (m *Movie) stamp(now time.Time)     { m.CreatedAt, m.UpdatedAt = now, now }

// changes lists the columns whose values differ from cur
func (m *Movie) changes(cur *Movie, opts UpsertOptions) map[string]any {
	ch := map[string]any{}
	if !equalInt64Ptr(m.TMDBID, cur.TMDBID) {
		ch["tmdb_id"] = m.TMDBID
	}
	if m.Title != cur.Title {
		ch["title"] = m.Title
	}
	if m.Overview != cur.Overview {
		ch["overview"] = m.Overview
	}
	if m.ReleaseDate != cur.ReleaseDate {
		ch["release_date"] = m.ReleaseDate
	}
	if m.Year != cur.Year {
		ch["year"] = m.Year
	}
	if m.Rating != cur.Rating {
		ch["rating"] = m.Rating
	}
	if m.Duration != cur.Duration {
		ch["duration"] = m.Duration
	}
	if !slices.Equal(m.Genres, cur.Genres) {
		ch["genres"] = m.Genres
	}
	if m.PosterPath != cur.PosterPath {
		ch["poster_path"] = m.PosterPath
	}
	if m.BackdropPath != cur.BackdropPath {
		ch["backdrop_path"] = m.BackdropPath
	}
	if m.VoteAverage != cur.VoteAverage {
		ch["vote_average"] = m.VoteAverage
	}
	if m.VoteCount != cur.VoteCount {
		ch["vote_count"] = m.VoteCount
	}
	if m.Popularity != cur.Popularity {
		ch["popularity"] = m.Popularity
	}
	if !opts.KeepQuality && m.Quality != cur.Quality {
		ch["quality"] = m.Quality
	}
	if !opts.KeepTrending && m.IsTrending != cur.IsTrending {
		ch["is_trending"] = m.IsTrending
	}
	return ch
}

// TVShow is a catalog row in the tvshows table
type TVShow struct {
	ID              uint   `gorm:"primaryKey"`
	IMDBID          string `gorm:"column:imdb_id;uniqueIndex;not null"`
	TMDBID          *int64 `gorm:"column:tmdb_id;uniqueIndex"`
	Title           string `gorm:"not null"`
	Overview        string
	FirstAirDate    string
	Year            string
	Rating          string
	Genres          Genres `gorm:"type:text"`
	NumberOfSeasons int
	PosterPath      string
	BackdropPath    string
	VoteAverage     float64
	VoteCount       int
	Popularity      float64
	IsTrending      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (TVShow) TableName() string { return "tvshows" }

func (s *TVShow) Kind() MediaType         { return MediaTypeTV }
func (s *TVShow) GetID() uint             { return s.ID }
func (s *TVShow) GetIMDBID() string       { return s.IMDBID }
func (s *TVShow) GetTMDBID() *int64       { return s.TMDBID }
func (s *TVShow) GetTitle() string        { return s.Title }
func (s *TVShow) GetPosterPath() string   { return s.PosterPath }
func (s *TVShow) GetBackdropPath() string { return s.BackdropPath }
func (s *TVShow) GetPopularity() float64  { return s.Popularity }
func (s *TVShow) Trending() bool          { return s.IsTrending }
func (s *TVShow) imdbKey() string         { return s.IMDBID }
func (s *TVShow) primaryKey() uint        { return s.ID }
func (s *TVShow) setTrending(v bool)      { s.IsTrending = v }
func (s *TVShow) stamp(now time.Time)     { s.CreatedAt, s.UpdatedAt = now, now }

func (s *TVShow) changes(cur *TVShow, opts UpsertOptions) map[string]any {
	ch := map[string]any{}
	if !equalInt64Ptr(s.TMDBID, cur.TMDBID) {
		ch["tmdb_id"] = s.TMDBID
	}
	if s.Title != cur.Title {
		ch["title"] = s.Title
	}
	if s.Overview != cur.Overview {
		ch["overview"] = s.Overview
	}
	if s.FirstAirDate != cur.FirstAirDate {
		ch["first_air_date"] = s.FirstAirDate
	}
	if s.Year != cur.Year {
		ch["year"] = s.Year
	}
	if s.Rating != cur.Rating {
		ch["rating"] = s.Rating
	}
	if !slices.Equal(s.Genres, cur.Genres) {
		ch["genres"] = s.Genres
	}
	if s.NumberOfSeasons != cur.NumberOfSeasons {
		ch["number_of_seasons"] = s.NumberOfSeasons
	}
	if s.PosterPath != cur.PosterPath {
		ch["poster_path"] = s.PosterPath
	}
	if s.BackdropPath != cur.BackdropPath {
		ch["backdrop_path"] = s.BackdropPath
	}
	if s.VoteAverage != cur.VoteAverage {
		ch["vote_average"] = s.VoteAverage
	}
	if s.VoteCount != cur.VoteCount {
		ch["vote_count"] = s.VoteCount
	}
	if s.Popularity != cur.Popularity {
		ch["popularity"] = s.Popularity
	}
	if !opts.KeepTrending && s.IsTrending != cur.IsTrending {
		ch["is_trending"] = s.IsTrending
	}
	return ch
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Int64Ptr is a convenience for building TMDB ids
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr is a convenience for season and episode numbers
func IntPtr(v int) *int { return &v }
