package calljobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = 4 * time.Minute

// Runner triggers sweeps on a cron schedule inside the server process.
type Runner struct {
	cron      *cron.Cron
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewRunner registers the sweep at spec, a five-field cron expression.
// A tick that fires while the previous sweep still runs is skipped.
func NewRunner(scheduler *Scheduler, spec string) (*Runner, error) {
	r := &Runner{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		scheduler: scheduler,
		logger:    scheduler.logger,
	}
	if _, err := r.cron.AddFunc(spec, r.RunOnce); err != nil {
		return nil, err
	}
	r.logger.Info("call job sweep scheduled", zap.String("schedule", spec))
	return r, nil
}

// RunOnce performs a single bounded sweep.
func (r *Runner) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	r.scheduler.ProcessScheduledJobs(ctx)
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to expire.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.logger.Warn("call job sweep still running at shutdown")
	}
}
