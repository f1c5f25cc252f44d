package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/controllers"
)

// Syncer runs one catalog sync cycle
type Syncer interface {
	SyncAll(ctx context.Context) *controllers.SyncReport
}

// Options configures the sync job
type Options struct {
	Schedule  string
	Timeout   time.Duration
	OnStartup bool
}

// OptionsFromConfig reads the scheduler settings
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Schedule:  cfg.SyncSchedule,
		Timeout:   cfg.SyncTimeout,
		OnStartup: cfg.SyncOnStartup,
	}
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron   *cron.Cron
	syncer Syncer
	opts   Options
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler. Runs never overlap: a tick that
// fires while a cycle is still going is skipped.
func NewScheduler(syncer Syncer, opts Options, logger *logrus.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		syncer: syncer,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.WithField("schedule", s.opts.Schedule).Info("Starting scheduler")

	job := cron.FuncJob(s.runSync)
	entry, err := s.cron.AddJob(s.opts.Schedule, job)
	if err != nil {
		return fmt.Errorf("failed to add sync job: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("next", s.cron.Entry(entry).Next).Info("Scheduler started")

	// Run through the wrapped job so a startup cycle and the first tick
	// cannot overlap
	if s.opts.OnStartup {
		wrapped := s.cron.Entry(entry).WrappedJob
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			wrapped.Run()
		}()
	}
	return nil
}

// Stop stops the scheduler, cancels a running cycle and waits for it
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// runSync executes the sync job
func (s *Scheduler) runSync() {
	ctx := s.ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	s.logger.Info("Running scheduled sync")
	report := s.syncer.SyncAll(ctx)
	switch {
	case report == nil:
		s.logger.Warn("Sync job skipped, a cycle is already running")
	case report.Partial():
		s.logger.WithField("run_id", report.RunID).Warn("Sync job completed with failures")
	default:
		s.logger.WithField("run_id", report.RunID).Info("Sync job completed successfully")
	}
}

// cronLogger routes cron's own messages through logrus
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
