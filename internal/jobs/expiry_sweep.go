package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/logger"
	"github.com/robfig/cron/v3"

	"jackpot/internal/services"
)

// Sweeper draws expired rounds.
type Sweeper interface {
	SweepExpired(ctx context.Context) (*services.SweepResult, error)
}

// ExpirySweepJob drives expired rounds through drawing on a schedule.
type ExpirySweepJob struct {
	sweeper Sweeper
	timeout time.Duration
}

func NewExpirySweepJob(sweeper Sweeper) *ExpirySweepJob {
	return &ExpirySweepJob{sweeper: sweeper, timeout: 20 * time.Second}
}

// Run performs one sweep. Errors are logged, never propagated, so the next
// tick always runs.
func (j *ExpirySweepJob) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	result, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		logger.Errorf("Expiry sweep failed: %v", err)
	}
	if result != nil && result.Processed {
		logger.Infof("Expiry sweep drew %d round(s): %v", len(result.RoundIDs), result.RoundIDs)
	}
}

// Scheduler runs jobs on cron specs such as "@every 30s".
type Scheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
}

func NewScheduler(baseCtx context.Context) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	cl := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		baseCtx: baseCtx,
	}
}

func (s *Scheduler) Add(spec string, job func(context.Context)) error {
	if _, err := s.cron.AddFunc(spec, func() { job(s.baseCtx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	logger.Info("Scheduler started")
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Scheduler stopped")
}

// cronLogger adapts google/logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.V(1).Infof("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
