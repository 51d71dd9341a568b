package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"sitepulse/internal/keepalive"
)

// Sweeper runs one keep-alive sweep.
type Sweeper interface {
	Sweep(ctx context.Context) keepalive.SweepSummary
}

type SchedulerConfig struct {
	// SweepSpec is a standard cron expression or descriptor such as "@every 1m".
	SweepSpec string
	// CleanupSpec defaults to "@daily".
	CleanupSpec string
	Schedule    keepalive.Schedule
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	cron    *robfigcron.Cron
	sweeper Sweeper
	cleanup *CleanupJob
	cfg     SchedulerConfig
	logger  *slog.Logger

	// ctx is replaced on every Start so a restarted scheduler runs jobs on
	// a live context.
	ctxMu  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	// Guards against overlapping runs of the same job
	processingMutex sync.Mutex
	processing      map[string]bool

	runMu     sync.Mutex
	isRunning bool
}

// NewScheduler registers the sweep job and, when cleanup is non-nil, the
// analytics retention job.
func NewScheduler(cfg SchedulerConfig, sweeper Sweeper, cleanup *CleanupJob, logger *slog.Logger) (*Scheduler, error) {
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = "@daily"
	}

	sweepSchedule, err := robfigcron.ParseStandard(cfg.SweepSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSpec, err)
	}
	if err := cfg.Schedule.CheckSweepInterval(sweepInterval(sweepSchedule, time.Now())); err != nil {
		logger.Warn("Sweep schedule is coarser than the execution window", slog.Any("error", err))
	}

	s := &Scheduler{
		cron:       robfigcron.New(),
		sweeper:    sweeper,
		cleanup:    cleanup,
		cfg:        cfg,
		logger:     logger,
		processing: make(map[string]bool),
	}

	s.cron.Schedule(sweepSchedule, robfigcron.FuncJob(s.runSweep))

	if cleanup != nil {
		if _, err := s.cron.AddFunc(cfg.CleanupSpec, s.runCleanup); err != nil {
			return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.CleanupSpec, err)
		}
	}

	return s, nil
}

// sweepInterval measures the gap between two consecutive activations.
func sweepInterval(schedule robfigcron.Schedule, from time.Time) time.Duration {
	first := schedule.Next(from)
	return schedule.Next(first).Sub(first)
}

// executeJobSafely runs a job unless a previous run of the same job is still
// executing.
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) bool {
	s.processingMutex.Lock()
	if s.processing[jobName] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return false
	}
	s.processing[jobName] = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		delete(s.processing, jobName)
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
	return true
}

// jobContext returns the context of the current run; it is cancelled by Stop.
func (s *Scheduler) jobContext() context.Context {
	s.ctxMu.RLock()
	defer s.ctxMu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) runSweep() {
	s.executeJobSafely("sweep", func() error {
		s.sweeper.Sweep(s.jobContext())
		return nil
	})
}

func (s *Scheduler) runCleanup() {
	s.executeJobSafely("cleanup", func() error {
		return s.cleanup.Run(s.jobContext())
	})
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.ctxMu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.ctxMu.Unlock()

	s.cron.Start()
	s.isRunning = true

	if s.cleanup != nil {
		go s.runCleanup()
	}

	s.logger.Info("Background jobs started",
		slog.String("sweep_schedule", s.cfg.SweepSpec),
		slog.Bool("cleanup", s.cleanup != nil))
	return nil
}

// Stop halts all background jobs. No new keep-alive calls start; calls
// already in flight finish within the pinger timeout and are recorded.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.isRunning {
		return
	}

	s.logger.Info("Stopping background jobs...")
	s.ctxMu.RLock()
	s.cancel()
	s.ctxMu.RUnlock()
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.isRunning
}

// TriggerSweep runs a sweep now on the caller's goroutine. It reports false
// when a sweep is already running.
func (s *Scheduler) TriggerSweep(ctx context.Context) (keepalive.SweepSummary, bool) {
	var summary keepalive.SweepSummary
	ran := s.executeJobSafely("sweep", func() error {
		summary = s.sweeper.Sweep(ctx)
		return nil
	})
	return summary, ran
}
