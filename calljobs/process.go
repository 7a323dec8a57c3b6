package calljobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cppla/slimcircle/models"
)

type outcome int

const (
	outcomeExecuted outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeAbandoned
)

// ProcessScheduledJobs runs one sweep over every kind.
//
// Due jobs whose subject is gone or whose call moved are deleted. The rest are delivered and
// marked executed; failures keep the job for the next sweep until the attempt cap flags it
// abandoned. Store errors are counted and never abort the sweep.
func (s *Scheduler) ProcessScheduledJobs(ctx context.Context) SweepResult {
	var res SweepResult
	start := time.Now()

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, SweepLockKey, sweepLockTTL)
		switch {
		case err != nil:
			s.logger.Warn("sweep lock unavailable, running unlocked", zap.Error(err))
		case !ok:
			s.logger.Info("call job sweep already running elsewhere")
			res.Locked = true
			return res
		default:
			defer s.locker.Unlock(context.WithoutCancel(ctx), SweepLockKey)
		}
	}

	for _, kind := range Kinds {
		kr := s.processKind(ctx, kind)
		s.record(kind, kr)
		res.add(kr)
	}
	s.metrics.ObserveSweep(start)

	s.logger.Info("call job sweep finished",
		zap.Int("processed", res.Processed),
		zap.Int("executed", res.Executed),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
		zap.Int("abandoned", res.Abandoned),
		zap.Duration("took", time.Since(start)))
	return res
}

func (s *Scheduler) record(kind Kind, r SweepResult) {
	k := string(kind)
	s.metrics.CallJobOutcome(k, "processed", r.Processed)
	s.metrics.CallJobOutcome(k, "executed", r.Executed)
	s.metrics.CallJobOutcome(k, "skipped", r.Skipped)
	s.metrics.CallJobOutcome(k, "error", r.Errors)
	s.metrics.CallJobOutcome(k, "abandoned", r.Abandoned)
}

func (s *Scheduler) processKind(ctx context.Context, kind Kind) SweepResult {
	var res SweepResult
	jobs, err := s.jobs.Due(ctx, kind, s.now(), s.batchSize)
	if err != nil {
		s.logger.Error("query due call jobs failed", zap.String("kind", string(kind)), zap.Error(err))
		res.Errors++
		return res
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		res.Processed++
		switch s.processJob(ctx, kind, job) {
		case outcomeExecuted:
			res.Executed++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Errors++
		case outcomeAbandoned:
			res.Errors++
			res.Abandoned++
		}
	}
	return res
}

func (s *Scheduler) processJob(ctx context.Context, kind Kind, job models.CallJob) outcome {
	log := s.logger.With(zap.String("kind", string(kind)), zap.String("job_id", job.ID))

	subject, err := s.subjects.Resolve(ctx, kind, job)
	if err != nil {
		return s.fail(ctx, kind, job, fmt.Errorf("resolve subject: %w", err))
	}

	if stale(subject, job) {
		if err := s.jobs.Delete(ctx, kind, []string{job.ID}); err != nil {
			log.Error("delete stale call job failed", zap.Error(err))
			return outcomeFailed
		}
		log.Info("stale call job discarded")
		return outcomeSkipped
	}

	if err := s.execute(ctx, kind, job, subject.Recipients); err != nil {
		return s.fail(ctx, kind, job, err)
	}

	if err := s.jobs.MarkExecuted(ctx, kind, job.ID, s.now()); err != nil {
		log.Error("mark call job executed failed", zap.Error(err))
		return outcomeFailed
	}
	return outcomeExecuted
}

func stale(subject *Subject, job models.CallJob) bool {
	if subject == nil || subject.NextCallAt == nil {
		return true
	}
	return !callInstant(*subject.NextCallAt).Equal(callInstant(job.CallDateTime))
}

func (s *Scheduler) fail(ctx context.Context, kind Kind, job models.CallJob, cause error) outcome {
	attempts := job.Attempts + 1
	abandoned := s.maxAttempts > 0 && attempts >= s.maxAttempts

	log := s.logger.With(zap.String("kind", string(kind)), zap.String("job_id", job.ID), zap.Int("attempts", attempts))
	if abandoned {
		log.Warn("call job abandoned after repeated failures", zap.Error(cause))
	} else {
		log.Warn("call job failed, will retry", zap.Error(cause))
	}

	if err := s.jobs.MarkFailed(ctx, kind, job.ID, truncate(cause.Error(), 1000), attempts, abandoned); err != nil {
		log.Error("record call job failure failed", zap.Error(err))
		return outcomeFailed
	}
	if abandoned {
		return outcomeAbandoned
	}
	return outcomeFailed
}

// execute delivers the job to every recipient independently. It fails only when every
// recipient failed, so one bad address never re-sends to the rest of the squad.
func (s *Scheduler) execute(ctx context.Context, kind Kind, job models.CallJob, recipients []models.User) error {
	t := JobType(job.JobType)
	if !t.IsNotify() && !t.IsEmail() {
		return fmt.Errorf("unknown job type %q", job.JobType)
	}
	if len(recipients) == 0 {
		return nil
	}

	var (
		failed   atomic.Int32
		mu       sync.Mutex
		firstErr error
	)
	var g errgroup.Group
	g.SetLimit(fanOutLimit)
	for _, user := range recipients {
		user := user
		g.Go(func() error {
			if err := s.deliver(ctx, kind, t, job, user); err != nil {
				failed.Add(1)
				s.logger.Warn("call reminder delivery failed",
					zap.String("job_id", job.ID),
					zap.String("user_id", user.ID),
					zap.Error(err))
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := int(failed.Load()); n == len(recipients) {
		return fmt.Errorf("all %d recipients failed: %w", n, firstErr)
	}
	return nil
}

func (s *Scheduler) deliver(ctx context.Context, kind Kind, t JobType, job models.CallJob, user models.User) error {
	if t.IsNotify() {
		n, err := buildNotification(kind, t, job, user)
		if err != nil {
			return err
		}
		return s.notifier.Create(ctx, n)
	}

	if s.mailer == nil || user.Email == "" || !user.WantsEmail(reminderCategory(kind, t)) {
		return nil
	}
	subject, body := buildEmail(kind, t, job, user, s.baseURL)
	return s.mailer.Send(ctx, user.Email, subject, body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
