package calljobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/observability"
	"github.com/cppla/slimcircle/utils"
)

const (
	defaultBatchSize   = 100
	defaultMaxAttempts = 10
	fanOutLimit        = 4

	// SweepLockKey guards overlapping sweeps across replicas.
	SweepLockKey = "calljobs:sweep:lock"
	sweepLockTTL = 4 * time.Minute
)

// JobStore persists jobs in the per-kind tables.
type JobStore interface {
	Upsert(ctx context.Context, kind Kind, jobs []models.CallJob) error
	Delete(ctx context.Context, kind Kind, ids []string) error
	Due(ctx context.Context, kind Kind, now time.Time, limit int) ([]models.CallJob, error)
	MarkExecuted(ctx context.Context, kind Kind, id string, at time.Time) error
	MarkFailed(ctx context.Context, kind Kind, id, reason string, attempts int, abandoned bool) error
}

// Subject is the current state of the squad or coaching pair a job refers to.
type Subject struct {
	NextCallAt *time.Time
	Recipients []models.User
}

// SubjectResolver re-reads a job's subject. It returns nil, nil when the subject is gone.
type SubjectResolver interface {
	Resolve(ctx context.Context, kind Kind, job models.CallJob) (*Subject, error)
}

// Notifier persists in-app notifications.
type Notifier interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Mailer sends a plain text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Locker provides the single-flight sweep lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string)
}

// Options tune a Scheduler.
//
// MaxAttempts of zero picks the default cap; a negative value retries forever.
type Options struct {
	BatchSize   int
	MaxAttempts int
	BaseURL     string
	Locker      Locker
	Now         func() time.Time
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Scheduler writes reminder jobs and sweeps the due ones.
type Scheduler struct {
	jobs     JobStore
	subjects SubjectResolver
	notifier Notifier
	mailer   Mailer

	batchSize   int
	maxAttempts int
	baseURL     string
	locker      Locker
	now         func() time.Time
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewScheduler wires a scheduler. A nil mailer drops email jobs as delivered.
func NewScheduler(jobs JobStore, subjects SubjectResolver, notifier Notifier, mailer Mailer, opts Options) (*Scheduler, error) {
	if jobs == nil || subjects == nil || notifier == nil {
		return nil, errors.New("call job store, subject resolver and notifier are required")
	}
	s := &Scheduler{
		jobs:        jobs,
		subjects:    subjects,
		notifier:    notifier,
		mailer:      mailer,
		batchSize:   opts.BatchSize,
		maxAttempts: opts.MaxAttempts,
		baseURL:     opts.BaseURL,
		locker:      opts.Locker,
		now:         opts.Now,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts == 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = utils.Logger
	}
	return s, nil
}

// ScheduleCallJobs writes every reminder of the call whose time is still ahead, overwriting
// any earlier job at the same id. It returns how many jobs were written.
func (s *Scheduler) ScheduleCallJobs(ctx context.Context, spec CallSpec) (int, error) {
	if _, err := spec.Kind.Table(); err != nil {
		return 0, err
	}
	if spec.SubjectID == "" {
		return 0, errors.New("call subject id is required")
	}
	if spec.CallTime.IsZero() {
		return 0, errors.New("call time is required")
	}

	now := s.now()
	callTime := callInstant(spec.CallTime)
	jobs := make([]models.CallJob, 0, len(schedule))
	for _, plan := range schedule {
		at := callTime.Add(plan.Offset)
		if !at.After(now) {
			continue
		}
		jobs = append(jobs, models.CallJob{
			ID:            spec.key(plan.Type).ID(),
			SubjectID:     spec.SubjectID,
			CoachID:       spec.CoachID,
			JobType:       string(plan.Type),
			ScheduledTime: at,
			CallDateTime:  callTime,
			SubjectName:   utils.SanitizeText(spec.SubjectName),
			CoachName:     utils.SanitizeText(spec.CoachName),
			CallTimezone:  spec.Timezone,
			CallLocation:  utils.SanitizeText(spec.Location),
			CallTitle:     utils.SanitizeText(spec.Title),
		})
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	if err := s.jobs.Upsert(ctx, spec.Kind, jobs); err != nil {
		return 0, fmt.Errorf("write %s call jobs: %w", spec.Kind, err)
	}
	s.metrics.CallJobsWritten(string(spec.Kind), len(jobs))
	s.logger.Info("call jobs scheduled",
		zap.String("kind", string(spec.Kind)),
		zap.String("subject_id", spec.SubjectID),
		zap.Time("call_time", callTime),
		zap.Int("jobs", len(jobs)))
	return len(jobs), nil
}

// CancelCallJobs removes every reminder the subject could hold.
func (s *Scheduler) CancelCallJobs(ctx context.Context, kind Kind, subjectID, coachID string) error {
	if _, err := kind.Table(); err != nil {
		return err
	}
	ids := make([]string, 0, len(schedule))
	for _, plan := range schedule {
		ids = append(ids, JobKey{Kind: kind, SubjectID: subjectID, CoachID: coachID, Type: plan.Type}.ID())
	}
	if err := s.jobs.Delete(ctx, kind, ids); err != nil {
		return fmt.Errorf("delete %s call jobs: %w", kind, err)
	}
	return nil
}

// Reschedule cancels the subject's jobs and, when the call is still set, schedules it again.
func (s *Scheduler) Reschedule(ctx context.Context, spec CallSpec) (int, error) {
	if err := s.CancelCallJobs(ctx, spec.Kind, spec.SubjectID, spec.CoachID); err != nil {
		return 0, err
	}
	if spec.CallTime.IsZero() {
		return 0, nil
	}
	return s.ScheduleCallJobs(ctx, spec)
}
