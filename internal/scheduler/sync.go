// Package scheduler runs sync passes on a cron schedule.
//
// Only one pass runs at a time: a tick that fires while a pass is still in
// progress is skipped, so the ledger always has a single writer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mrlokans/weread2flomo/internal/syncer"
)

const (
	defaultRunTimeout = 30 * time.Minute
	cleanupSchedule   = "30 3 * * *"
)

var ErrSyncInProgress = errors.New("sync already in progress")

// Runner performs one sync pass.
type Runner interface {
	Run(ctx context.Context) (*syncer.RunStatistics, error)
}

// AuditCleaner removes journal entries older than the retention period.
type AuditCleaner interface {
	DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error)
}

// RunResult is the outcome of the last finished pass.
type RunResult struct {
	Stats      syncer.RunStatistics `json:"stats"`
	Error      string               `json:"error,omitempty"`
	Trigger    string               `json:"trigger"`
	FinishedAt time.Time            `json:"finished_at"`
}

type Options struct {
	Schedule   string
	RunTimeout time.Duration

	// Cleaner and Retention enable a daily journal cleanup job.
	Cleaner   AuditCleaner
	Retention time.Duration
}

// SyncScheduler manages periodic sync passes.
type SyncScheduler struct {
	runner Runner
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSyncing  bool
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	last       *RunResult
	wg         sync.WaitGroup
}

// NewSyncScheduler creates a new scheduler instance
func NewSyncScheduler(runner Runner, opts Options, logger zerolog.Logger) *SyncScheduler {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	return &SyncScheduler{
		runner:  runner,
		opts:    opts,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		now:     time.Now,
		baseCtx: context.Background(),
	}
}

// Start registers the sync job and starts the cron loop. Passes started by
// the scheduler are cancelled when ctx is done.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := ValidateCronSchedule(s.opts.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.opts.Schedule, err)
	}

	c := cron.New(cron.WithParser(parser))
	entryID, err := c.AddFunc(s.opts.Schedule, func() {
		_ = s.runSync("schedule")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}

	if s.opts.Cleaner != nil && s.opts.Retention > 0 {
		if _, err := c.AddFunc(cleanupSchedule, s.cleanup); err != nil {
			return fmt.Errorf("failed to schedule cleanup job: %w", err)
		}
	}

	s.cron = c
	s.entryID = entryID
	s.baseCtx, s.cancelFunc = context.WithCancel(ctx)

	c.Start()
	s.isRunning = true

	next, _ := NextRunTime(s.opts.Schedule, s.now())
	s.logger.Info().
		Str("schedule", s.opts.Schedule).
		Str("description", CronDescription(s.opts.Schedule)).
		Time("next_run", next).
		Msg("Sync scheduler started")

	return nil
}

// Stop stops the cron loop, cancels a pass in progress and waits for it to
// finish persisting.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	c := s.cron
	cancel := s.cancelFunc
	s.isRunning = false
	s.cancelFunc = nil
	s.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()

	s.logger.Info().Msg("Sync scheduler stopped")
}

// RunNow triggers an immediate pass in the background.
func (s *SyncScheduler) RunNow() error {
	base, ok := s.beginSync()
	if !ok {
		return ErrSyncInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(base, "manual")
	}()
	return nil
}

// Wait blocks until passes started with RunNow have finished.
func (s *SyncScheduler) Wait() {
	s.wg.Wait()
}

// IsRunning returns whether the scheduler is active
func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsSyncing returns whether a sync is currently in progress
func (s *SyncScheduler) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSyncing
}

// NextRunTime returns when the next sync will occur
func (s *SyncScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// LastResult returns the outcome of the most recent finished pass, or nil.
func (s *SyncScheduler) LastResult() *RunResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	result := *s.last
	return &result
}

// runSync performs the actual sync operation
func (s *SyncScheduler) runSync(trigger string) error {
	base, ok := s.beginSync()
	if !ok {
		s.logger.Info().Str("trigger", trigger).Msg("Sync skipped, already syncing")
		return ErrSyncInProgress
	}
	return s.execute(base, trigger)
}

// beginSync marks a pass as started. It reports false when one is already
// in progress.
func (s *SyncScheduler) beginSync() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSyncing {
		return nil, false
	}
	s.isSyncing = true
	return s.baseCtx, true
}

// execute runs one pass started by beginSync and clears the syncing flag.
func (s *SyncScheduler) execute(base context.Context, trigger string) error {
	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(base, s.opts.RunTimeout)
	defer cancel()

	s.logger.Info().Str("trigger", trigger).Msg("Sync starting")
	stats, err := s.runner.Run(ctx)

	result := &RunResult{Trigger: trigger, FinishedAt: s.now()}
	if stats != nil {
		result.Stats = *stats
	}
	if err != nil {
		result.Error = err.Error()
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("Sync failed")
	} else {
		s.logger.Info().
			Int("synced", result.Stats.Synced).
			Int("failed", result.Stats.Failed).
			Dur("duration", result.Stats.Duration()).
			Msg("Sync finished")
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	return err
}

func (s *SyncScheduler) cleanup() {
	s.mu.RLock()
	base := s.baseCtx
	s.mu.RUnlock()

	deleted, err := s.opts.Cleaner.DeleteOldEvents(base, s.opts.Retention)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Audit cleanup failed")
		return
	}
	s.logger.Info().Int64("deleted", deleted).Dur("retention", s.opts.Retention).Msg("Audit events cleaned up")
}
