package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/metrics"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/apiclient"
	"github.com/amaumene/homeflix/internal/services/tmdb"
	"github.com/amaumene/homeflix/internal/services/vidsrc"
	"github.com/amaumene/homeflix/internal/utils"
)

// MetadataProvider is the detail source for catalog rows
type MetadataProvider interface {
	FindByExternalID(ctx context.Context, imdbID string) (*tmdb.FindResult, error)
	GetDetail(ctx context.Context, providerID int64, kind models.MediaType) (*tmdb.Detail, error)
	GetImages(ctx context.Context, providerID int64, kind models.MediaType) (*tmdb.Images, error)
	GetCrossRefID(ctx context.Context, providerID int64, kind models.MediaType) (string, error)
	Trending(ctx context.Context, kind models.MediaType, page int) ([]tmdb.ListItem, error)
	GetSeason(ctx context.Context, providerID int64, season int) (*tmdb.Season, error)
}

// ListingSource supplies the latest additions as id stubs
type ListingSource interface {
	Latest(ctx context.Context, kind models.MediaType, page int) ([]vidsrc.Stub, error)
}

// SyncOptions bounds how much a cycle fetches and how wide it fans out
type SyncOptions struct {
	MoviePages    int
	TVPages       int
	TrendingPages int
	PageWorkers   int
	DetailWorkers int
}

// SyncOptionsFromConfig reads the sync settings
func SyncOptionsFromConfig(cfg *config.Config) SyncOptions {
	return SyncOptions{
		MoviePages:    cfg.SyncMoviePages,
		TVPages:       cfg.SyncTVPages,
		TrendingPages: cfg.SyncTrendingPages,
		PageWorkers:   cfg.SyncPageWorkers,
		DetailWorkers: cfg.SyncDetailWorkers,
	}
}

// StageReport counts what one stage did
type StageReport struct {
	Name        string           `json:"name"`
	Kind        models.MediaType `json:"kind"`
	Pages       int              `json:"pages"`
	PagesFailed int              `json:"pages_failed"`
	Listed      int              `json:"listed"`
	Resolved    int              `json:"resolved"`
	Skipped     int              `json:"skipped"`
	Failed      int              `json:"failed"`
	Written     int              `json:"written"`
	Applied     bool             `json:"applied"`
	Duration    time.Duration    `json:"duration"`
}

// SyncReport summarises one cycle
type SyncReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Stages     []StageReport `json:"stages"`
	Movies     int64         `json:"movies"`
	TVShows    int64         `json:"tvshows"`
}

// Partial reports whether any page or item failed during the cycle
func (r *SyncReport) Partial() bool {
	for _, s := range r.Stages {
		if s.PagesFailed > 0 || s.Failed > 0 {
			return true
		}
	}
	return false
}

// SyncController reconciles the catalog against the trending and latest listings
type SyncController struct {
	db        *models.Database
	provider  MetadataProvider
	listing   ListingSource
	blocklist *utils.Blocklist
	opts      SyncOptions
	logger    *logrus.Logger

	running sync.Mutex
	mu      sync.RWMutex
	last    *SyncReport
}

// NewSyncController creates a new sync controller
func NewSyncController(db *models.Database, provider MetadataProvider, listing ListingSource, blocklist *utils.Blocklist, opts SyncOptions, logger *logrus.Logger) *SyncController {
	if opts.PageWorkers < 1 {
		opts.PageWorkers = 1
	}
	if opts.DetailWorkers < 1 {
		opts.DetailWorkers = 1
	}
	for _, n := range []*int{&opts.MoviePages, &opts.TVPages, &opts.TrendingPages} {
		if *n < 0 {
			*n = 0
		}
	}
	if blocklist == nil {
		blocklist = utils.NewBlocklist(nil)
	}
	return &SyncController{
		db:        db,
		provider:  provider,
		listing:   listing,
		blocklist: blocklist,
		opts:      opts,
		logger:    logger,
	}
}

// LastReport returns the report of the most recent completed cycle, or nil
func (c *SyncController) LastReport() *SyncReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// cycle holds the per-run memo tables
type cycle struct {
	runID    string
	details  *memo[*resolved]
	crossRef *memo[string]
}

// resolved is a fully fetched title, shared between stages of a cycle
type resolved struct {
	imdbID       string
	detail       *tmdb.Detail
	posterPath   string
	backdropPath string
}

func (r *resolved) record(quality string) models.Media {
	rec := r.detail.Record(r.imdbID, quality)
	switch v := rec.(type) {
	case *models.Movie:
		v.PosterPath, v.BackdropPath = r.posterPath, r.backdropPath
	case *models.TVShow:
		v.PosterPath, v.BackdropPath = r.posterPath, r.backdropPath
	}
	return rec
}

// SyncAll runs one full cycle: trending movies, trending series, latest
// movies, latest series. Page and item failures are logged and skipped, so
// the cycle always completes. Returns nil when a cycle is already running.
func (c *SyncController) SyncAll(ctx context.Context) *SyncReport {
	if !c.running.TryLock() {
		c.logger.Warn("Sync already in progress, skipping")
		return nil
	}
	defer c.running.Unlock()

	cy := &cycle{
		runID:    uuid.NewString(),
		details:  newMemo[*resolved](),
		crossRef: newMemo[string](),
	}
	report := &SyncReport{RunID: cy.runID, StartedAt: time.Now()}
	log := c.logger.WithField("run_id", cy.runID)
	log.Info("Starting catalog sync")

	ctx, span := otel.Tracer("homeflix/sync").Start(ctx, "sync.cycle")
	span.SetAttributes(attribute.String("run_id", cy.runID))
	defer span.End()

	// Step 1: Trending, movies then series
	report.Stages = append(report.Stages,
		c.syncTrending(ctx, cy, models.MediaTypeMovie),
		c.syncTrending(ctx, cy, models.MediaTypeTV),
	)

	// Step 2: Latest listings
	report.Stages = append(report.Stages,
		c.syncLatest(ctx, cy, models.MediaTypeMovie, c.opts.MoviePages),
		c.syncLatest(ctx, cy, models.MediaTypeTV, c.opts.TVPages),
	)

	if n, err := c.db.CountMovies(); err == nil {
		report.Movies = n
	}
	if n, err := c.db.CountTVShows(); err == nil {
		report.TVShows = n
	}

	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	result := "ok"
	if report.Partial() {
		result = "partial"
		span.SetStatus(codes.Error, "partial cycle")
	}
	metrics.SyncRuns.WithLabelValues(result).Inc()
	metrics.SyncDuration.Observe(report.Duration.Seconds())

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	log.WithFields(logrus.Fields{
		"duration":      report.Duration.Round(time.Millisecond).String(),
		"movies":        report.Movies,
		"tvshows":       report.TVShows,
		"details_known": cy.details.len(),
		"result":        result,
	}).Info("Catalog sync completed")
	return report
}

// syncTrending replaces the trending set for kind. When no pages are
// configured, every page fails, or nothing listed could be resolved, the
// existing flags are left alone.
func (c *SyncController) syncTrending(ctx context.Context, cy *cycle, kind models.MediaType) StageReport {
	stage := StageReport{Name: "trending_" + string(kind), Kind: kind, Pages: c.opts.TrendingPages}
	start := time.Now()
	ctx, span := otel.Tracer("homeflix/sync").Start(ctx, "sync.stage."+stage.Name)
	defer span.End()

	// Phase 1: pages
	pages := make([][]tmdb.ListItem, stage.Pages)
	stage.PagesFailed = c.fetchPages(ctx, stage.Name, stage.Pages, func(ctx context.Context, page int) error {
		items, err := c.provider.Trending(ctx, kind, page)
		if err == nil {
			pages[page-1] = items
		}
		return err
	})

	var items []tmdb.ListItem
	seen := map[int64]bool{}
	for _, page := range pages {
		for _, it := range page {
			if it.ProviderID == 0 || seen[it.ProviderID] {
				continue
			}
			seen[it.ProviderID] = true
			items = append(items, it)
		}
	}
	stage.Listed = len(items)

	// Phase 2: details
	recs := make([]models.Media, len(items))
	outcomes := c.fanOut(ctx, len(items), func(ctx context.Context, i int) error {
		it := items[i]
		imdbID, err := cy.crossRef.do(crossRefKey(kind, it.ProviderID), func() (string, error) {
			return c.provider.GetCrossRefID(ctx, it.ProviderID, kind)
		})
		if err != nil {
			return err
		}
		if blocked, reason := c.blocklist.IsBlocked(imdbID, it.Title); blocked {
			return blockedError(reason)
		}
		r, err := c.resolve(ctx, cy, kind, imdbID, it.ProviderID)
		if err != nil {
			return err
		}
		recs[i] = r.record(utils.DefaultQuality)
		return nil
	})
	c.tally(&stage, outcomes)

	// Phase 3: drain
	ready := compact(recs)
	switch {
	case stage.Pages == 0:
		c.logger.WithField("stage", stage.Name).Debug("No trending pages configured, keeping previous trending set")
	case stage.PagesFailed == stage.Pages:
		c.logger.WithField("stage", stage.Name).Warn("Every trending page failed, keeping previous trending set")
	case stage.Listed > 0 && len(ready) == 0:
		c.logger.WithField("stage", stage.Name).Warn("No trending item could be resolved, keeping previous trending set")
	default:
		applied, err := c.db.ApplyTrending(kind, ready)
		if err != nil {
			c.logger.WithError(err).WithField("stage", stage.Name).Error("Failed to apply trending set")
			stage.Failed += len(ready)
		} else {
			stage.Applied = true
			stage.Written = applied
			stage.Failed += len(ready) - applied
		}
	}

	return c.finishStage(span, stage, start)
}

// syncLatest upserts the latest listing for kind without touching trending flags
func (c *SyncController) syncLatest(ctx context.Context, cy *cycle, kind models.MediaType, pageCount int) StageReport {
	stage := StageReport{Name: "latest_" + string(kind), Kind: kind, Pages: pageCount}
	start := time.Now()
	ctx, span := otel.Tracer("homeflix/sync").Start(ctx, "sync.stage."+stage.Name)
	defer span.End()

	// Phase 1: pages
	pages := make([][]vidsrc.Stub, pageCount)
	stage.PagesFailed = c.fetchPages(ctx, stage.Name, pageCount, func(ctx context.Context, page int) error {
		stubs, err := c.listing.Latest(ctx, kind, page)
		if err == nil {
			pages[page-1] = stubs
		}
		return err
	})

	var stubs []vidsrc.Stub
	seen := map[string]bool{}
	for _, page := range pages {
		for _, s := range page {
			if s.IMDBID == "" || seen[s.IMDBID] {
				continue
			}
			seen[s.IMDBID] = true
			stubs = append(stubs, s)
		}
	}
	stage.Listed = len(stubs)

	// Phase 2: details
	recs := make([]models.Media, len(stubs))
	outcomes := c.fanOut(ctx, len(stubs), func(ctx context.Context, i int) error {
		s := stubs[i]
		if blocked, reason := c.blocklist.IsBlocked(s.IMDBID, s.Title); blocked {
			return blockedError(reason)
		}
		r, err := c.resolve(ctx, cy, kind, s.IMDBID, 0)
		if err != nil {
			return err
		}
		if blocked, reason := c.blocklist.IsBlocked(r.imdbID, r.detail.Title); blocked {
			return blockedError(reason)
		}
		recs[i] = r.record(s.Quality)
		return nil
	})
	c.tally(&stage, outcomes)

	// Phase 3: drain
	ready := compact(recs)
	stage.Written = c.db.UpsertMediaBatch(ready, models.UpsertOptions{KeepTrending: true})

	return c.finishStage(span, stage, start)
}

// resolve fetches detail and images for a title once per cycle. A zero
// providerID is looked up from the IMDB id first.
func (c *SyncController) resolve(ctx context.Context, cy *cycle, kind models.MediaType, imdbID string, providerID int64) (*resolved, error) {
	return cy.details.do(string(kind)+":"+imdbID, func() (*resolved, error) {
		id := providerID
		if id == 0 {
			found, err := c.provider.FindByExternalID(ctx, imdbID)
			if err != nil {
				return nil, err
			}
			if found.Kind != kind {
				return nil, fmt.Errorf("%s resolves to a %s: %w", imdbID, found.Kind, tmdb.ErrNoMatch)
			}
			id = found.ProviderID
		}

		detail, err := c.provider.GetDetail(ctx, id, kind)
		if err != nil {
			return nil, err
		}

		r := &resolved{
			imdbID:       imdbID,
			detail:       detail,
			posterPath:   detail.PosterPath,
			backdropPath: detail.BackdropPath,
		}
		images, err := c.provider.GetImages(ctx, id, kind)
		if err != nil {
			c.logger.WithError(err).WithField("imdb_id", imdbID).Debug("Could not fetch images, using default paths")
		} else {
			r.posterPath = images.BestPoster(detail.PosterPath)
			r.backdropPath = images.BestBackdrop(detail.BackdropPath)
		}
		return r, nil
	})
}

// fetchPages runs fetch for pages 1..n on the page pool and returns the
// number of failed pages
func (c *SyncController) fetchPages(ctx context.Context, stage string, n int, fetch func(ctx context.Context, page int) error) int {
	var (
		mu     sync.Mutex
		failed int
	)
	p := pool.New().WithMaxGoroutines(c.opts.PageWorkers)
	for page := 1; page <= n; page++ {
		page := page
		p.Go(func() {
			if err := fetch(ctx, page); err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"stage": stage,
					"page":  page,
				}).Warn("Failed to fetch listing page, continuing")
				mu.Lock()
				failed++
				mu.Unlock()
			}
		})
	}
	p.Wait()
	return failed
}

// fanOut runs work for 0..n-1 on the detail pool and collects each error
func (c *SyncController) fanOut(ctx context.Context, n int, work func(ctx context.Context, i int) error) []error {
	outcomes := make([]error, n)
	p := pool.New().WithMaxGoroutines(c.opts.DetailWorkers)
	for i := 0; i < n; i++ {
		i := i
		p.Go(func() {
			if ctx.Err() != nil {
				outcomes[i] = ctx.Err()
				return
			}
			outcomes[i] = work(ctx, i)
		})
	}
	p.Wait()
	return outcomes
}

func (c *SyncController) tally(stage *StageReport, outcomes []error) {
	for _, err := range outcomes {
		switch {
		case err == nil:
			stage.Resolved++
		case isSkip(err):
			stage.Skipped++
			c.logger.WithField("stage", stage.Name).WithError(err).Debug("Skipping item")
		default:
			stage.Failed++
			c.logger.WithField("stage", stage.Name).WithError(err).Warn("Failed to resolve item")
		}
	}
}

func (c *SyncController) finishStage(span trace.Span, stage StageReport, start time.Time) StageReport {
	stage.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("listed", stage.Listed),
		attribute.Int("written", stage.Written),
		attribute.Int("skipped", stage.Skipped),
		attribute.Int("failed", stage.Failed),
		attribute.Int("pages_failed", stage.PagesFailed),
	)
	metrics.SyncItems.WithLabelValues(stage.Name, metrics.OutcomeStored).Add(float64(stage.Written))
	metrics.SyncItems.WithLabelValues(stage.Name, metrics.OutcomeSkipped).Add(float64(stage.Skipped))
	metrics.SyncItems.WithLabelValues(stage.Name, metrics.OutcomeFailed).Add(float64(stage.Failed))

	c.logger.WithFields(logrus.Fields{
		"stage":        stage.Name,
		"listed":       stage.Listed,
		"written":      stage.Written,
		"skipped":      stage.Skipped,
		"failed":       stage.Failed,
		"pages_failed": stage.PagesFailed,
		"duration":     stage.Duration.Round(time.Millisecond).String(),
	}).Info("Sync stage completed")
	return stage
}

type blockedError string

func (e blockedError) Error() string { return "blocklisted: " + string(e) }

// isSkip separates expected misses from failures worth a warning
func isSkip(err error) bool {
	var be blockedError
	return errors.As(err, &be) ||
		errors.Is(err, tmdb.ErrNoMatch) ||
		errors.Is(err, apiclient.ErrNotFound)
}

func crossRefKey(kind models.MediaType, providerID int64) string {
	return string(kind) + ":" + strconv.FormatInt(providerID, 10)
}

func compact(recs []models.Media) []models.Media {
	out := make([]models.Media, 0, len(recs))
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
