package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	precomputeSvc *PrecomputeService
	schedule      string
	jobTimeout    time.Duration
	logger        *logrus.Logger
}

// NewCronService creates a new CronService.
// schedule is a cron spec with seconds, e.g. "0 0 3 * * *".
func NewCronService(precomputeSvc *PrecomputeService, schedule string, logger *logrus.Logger) *CronService {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:          c,
		precomputeSvc: precomputeSvc,
		schedule:      schedule,
		jobTimeout:    6 * time.Hour,
		logger:        logger,
	}
}

// Start schedules the precompute job and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Refresh the route cache
	// Cron format: second minute hour day month weekday
	if _, err := s.cron.AddFunc(s.schedule, s.precomputeRoutesJob); err != nil {
		return fmt.Errorf("failed to schedule route precompute job: %w", err)
	}
	s.logger.WithField("schedule", s.schedule).Info("Scheduled: route cache precompute")

	s.cron.Start()
	s.logger.Info("Cron service started successfully")

	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// precomputeRoutesJob recomputes the cached routes of the busiest pairs
func (s *CronService) precomputeRoutesJob() {
	if !s.precomputeSvc.TryStart() {
		s.logger.Warn("[CRON] Route precompute already running, skipping")
		return
	}
	s.logger.Info("[CRON] Starting route precompute job...")
	s.runClaimedPrecompute("[CRON]")
}

// RunPrecomputeNow runs the precompute job immediately in the background.
// The run slot is claimed before returning, so concurrent callers see
// ErrPrecomputeRunning.
func (s *CronService) RunPrecomputeNow() error {
	if !s.precomputeSvc.TryStart() {
		return ErrPrecomputeRunning
	}
	s.logger.Info("[MANUAL] Running route precompute now...")
	go s.runClaimedPrecompute("[MANUAL]")
	return nil
}

func (s *CronService) runClaimedPrecompute(origin string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	summary, err := s.precomputeSvc.RunClaimed(ctx)
	if err != nil {
		s.logger.WithError(err).Errorf("%s Route precompute job failed", origin)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":      summary.RunID,
		"stored":      summary.Stored,
		"failed":      summary.Failed,
		"duration_ms": summary.DurationMs,
	}).Infof("%s Route precompute job finished", origin)
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":         len(entries) > 0,
		"job_count":       len(entries),
		"jobs":            jobs,
		"precomputing":    s.precomputeSvc.Running(),
		"last_precompute": s.precomputeSvc.LastSummary(),
	}
}
