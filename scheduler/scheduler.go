// ABOUTME: Cron trigger that runs full syncs on a schedule
// ABOUTME: Skips a tick when the previous sync is still running
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/reconcile"
	"github.com/robfig/cron/v3"
)

// Syncer is anything that can run a full sync.
type Syncer interface {
	FullSync(ctx context.Context) (models.SyncReport, error)
}

type Scheduler struct {
	cron   *cron.Cron
	syncer Syncer
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses a standard five-field cron expression and binds it to syncer.
func New(spec string, syncer Syncer, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		syncer: syncer,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(spec, s.Run); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to parse sync schedule %q: %w", spec, err)
	}
	return s, nil
}

// Run performs one scheduled sync. Errors are logged, not returned.
func (s *Scheduler) Run() {
	s.logger.Info("scheduled sync starting")

	report, err := s.syncer.FullSync(s.ctx)
	switch {
	case errors.Is(err, reconcile.ErrSyncInProgress):
		s.logger.Info("scheduled sync skipped, another sync is running")
	case err != nil:
		s.logger.Error("scheduled sync failed", "error", err, "total", report.Total, "failed", report.Failed)
	default:
		s.logger.Info("scheduled sync finished",
			"total", report.Total,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"duration", report.Duration())
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, cancels an in-flight sync, and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
