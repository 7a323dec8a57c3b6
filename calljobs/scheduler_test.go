package calljobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/slimcircle/models"
)

type memJobs struct {
	mu     sync.Mutex
	tables map[Kind]map[string]models.CallJob
	dueErr error
}

func newMemJobs() *memJobs {
	return &memJobs{tables: map[Kind]map[string]models.CallJob{KindSquad: {}, KindCoaching: {}}}
}

func (m *memJobs) Upsert(_ context.Context, kind Kind, jobs []models.CallJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range jobs {
		m.tables[kind][j.ID] = j
	}
	return nil
}

func (m *memJobs) Delete(_ context.Context, kind Kind, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.tables[kind], id)
	}
	return nil
}

func (m *memJobs) Due(_ context.Context, kind Kind, now time.Time, limit int) ([]models.CallJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	var out []models.CallJob
	for _, j := range m.tables[kind] {
		if !j.Executed && !j.Abandoned && !j.ScheduledTime.After(now) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ScheduledTime.Before(out[k].ScheduledTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobs) MarkExecuted(_ context.Context, kind Kind, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.tables[kind][id]
	j.Executed = true
	j.ExecutedAt = &at
	m.tables[kind][id] = j
	return nil
}

func (m *memJobs) MarkFailed(_ context.Context, kind Kind, id, reason string, attempts int, abandoned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.tables[kind][id]
	j.Error = reason
	j.Attempts = attempts
	j.Abandoned = abandoned
	m.tables[kind][id] = j
	return nil
}

func (m *memJobs) ids(kind Kind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.tables[kind] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type staticSubjects struct {
	subject *Subject
	err     error
}

func (s *staticSubjects) Resolve(context.Context, Kind, models.CallJob) (*Subject, error) {
	return s.subject, s.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []models.Notification
	failFor map[string]bool
}

func (n *recordingNotifier) Create(_ context.Context, note *models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[note.UserID] || n.failFor["*"] {
		return errors.New("notification store unavailable")
	}
	n.created = append(n.created, *note)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.created)
}

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var callTime = time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)

func squadSpec() CallSpec {
	return CallSpec{
		Kind:        KindSquad,
		SubjectID:   "sq1",
		CallTime:    callTime,
		SubjectName: "Tuesday Movers",
		Timezone:    "America/New_York",
		Location:    "https://meet.example.com/sq1",
		Title:       "Weekly squad call",
	}
}

func TestJobKeyAndTypes(t *testing.T) {
	assert.Equal(t, "sq1_notify-24h", JobKey{Kind: KindSquad, SubjectID: "sq1", Type: Notify24h}.ID())
	assert.Equal(t, "u1_c1_email-1h", JobKey{Kind: KindCoaching, SubjectID: "u1", CoachID: "c1", Type: Email1h}.ID())

	assert.Equal(t, []JobType{Notify24h, Email24h, Notify1h, Email1h, NotifyLive}, JobTypes())
	assert.True(t, Email24h.IsEmail())
	assert.False(t, Email24h.IsNotify())
	assert.True(t, NotifyLive.IsNotify())
	assert.Equal(t, WindowLive, NotifyLive.Window())
	assert.Equal(t, Window1h, Email1h.Window())

	k, err := ParseKind(" Coaching ")
	require.NoError(t, err)
	assert.Equal(t, KindCoaching, k)
	_, err = ParseKind("webinar")
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = Kind("webinar").Table()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestScheduleCallJobs(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		until time.Duration
		want  []string
	}{
		{"two days ahead creates all five", 48 * time.Hour, []string{"sq1_email-1h", "sq1_email-24h", "sq1_notify-1h", "sq1_notify-24h", "sq1_notify-live"}},
		{"three hours ahead skips the 24h pair", 3 * time.Hour, []string{"sq1_email-1h", "sq1_notify-1h", "sq1_notify-live"}},
		{"under an hour creates only the live job", 30 * time.Minute, []string{"sq1_notify-live"}},
		{"exactly one hour ahead skips the 1h pair", time.Hour, []string{"sq1_notify-live"}},
		{"past call creates nothing", -time.Minute, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jobs := newMemJobs()
			s, err := NewScheduler(jobs, &staticSubjects{}, &recordingNotifier{}, nil, Options{
				Now: func() time.Time { return callTime.Add(-tc.until) },
			})
			require.NoError(t, err)

			n, err := s.ScheduleCallJobs(ctx, squadSpec())
			require.NoError(t, err)
			assert.Equal(t, len(tc.want), n)
			assert.Equal(t, tc.want, jobs.ids(KindSquad))
		})
	}
}

func TestScheduleCallJobsFields(t *testing.T) {
	jobs := newMemJobs()
	s, err := NewScheduler(jobs, &staticSubjects{}, &recordingNotifier{}, nil, Options{
		Now: func() time.Time { return callTime.Add(-48 * time.Hour) },
	})
	require.NoError(t, err)

	spec := squadSpec()
	spec.Title = "<b>Weekly</b> squad call"
	spec.CallTime = callTime.Add(400 * time.Millisecond)
	_, err = s.ScheduleCallJobs(context.Background(), spec)
	require.NoError(t, err)

	job := jobs.tables[KindSquad]["sq1_notify-24h"]
	assert.Equal(t, "Weekly squad call", job.CallTitle)
	assert.True(t, job.CallDateTime.Equal(callTime))
	assert.True(t, job.ScheduledTime.Equal(callTime.Add(-24*time.Hour)))
	assert.False(t, job.Executed)

	_, err = s.ScheduleCallJobs(context.Background(), CallSpec{Kind: "webinar", SubjectID: "x", CallTime: callTime})
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = s.ScheduleCallJobs(context.Background(), CallSpec{Kind: KindSquad, CallTime: callTime})
	assert.Error(t, err)
}

func TestRescheduleAndCancel(t *testing.T) {
	ctx := context.Background()
	jobs := newMemJobs()
	s, err := NewScheduler(jobs, &staticSubjects{}, &recordingNotifier{}, nil, Options{
		Now: func() time.Time { return callTime.Add(-48 * time.Hour) },
	})
	require.NoError(t, err)

	_, err = s.ScheduleCallJobs(ctx, squadSpec())
	require.NoError(t, err)

	// moving the call to 90 minutes from now must not leave the old 24h jobs behind
	spec := squadSpec()
	spec.CallTime = callTime.Add(-48*time.Hour + 90*time.Minute)
	n, err := s.Reschedule(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"sq1_email-1h", "sq1_notify-1h", "sq1_notify-live"}, jobs.ids(KindSquad))

	spec.CallTime = time.Time{}
	n, err = s.Reschedule(ctx, spec)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, jobs.ids(KindSquad))
}

func TestProcessScheduledJobs(t *testing.T) {
	ctx := context.Background()
	next := callTime
	members := []models.User{
		{ID: "u1", Email: "ann@example.com", FirstName: "Ann", Timezone: "America/Los_Angeles"},
		{ID: "u2", Email: "bo@example.com", FirstName: "Bo", Timezone: "America/New_York",
			EmailOptOuts: models.EmailOptOuts{SquadCall24h: true}},
	}

	newFixture := func(t *testing.T, opts Options) (*Scheduler, *memJobs, *recordingNotifier, *recordingMailer, *staticSubjects, *clock) {
		t.Helper()
		c := &clock{t: callTime.Add(-48 * time.Hour)}
		opts.Now = c.Now
		jobs := newMemJobs()
		subjects := &staticSubjects{subject: &Subject{NextCallAt: &next, Recipients: members}}
		notifier := &recordingNotifier{failFor: map[string]bool{}}
		mailer := &recordingMailer{}
		s, err := NewScheduler(jobs, subjects, notifier, mailer, opts)
		require.NoError(t, err)
		_, err = s.ScheduleCallJobs(ctx, squadSpec())
		require.NoError(t, err)
		return s, jobs, notifier, mailer, subjects, c
	}

	t.Run("nothing is due before the first reminder", func(t *testing.T) {
		s, _, notifier, _, _, _ := newFixture(t, Options{})
		res := s.ProcessScheduledJobs(ctx)
		assert.Equal(t, SweepResult{}, res)
		assert.Zero(t, notifier.count())
	})

	t.Run("due jobs run once and respect email preferences", func(t *testing.T) {
		s, jobs, notifier, mailer, _, c := newFixture(t, Options{BaseURL: "https://app.example.com/"})
		c.Set(callTime.Add(-23 * time.Hour))

		res := s.ProcessScheduledJobs(ctx)
		assert.Equal(t, SweepResult{Processed: 2, Executed: 2}, res)
		assert.Equal(t, 2, notifier.count())
		require.Len(t, mailer.sent, 1)
		assert.Equal(t, "ann@example.com", mailer.sent[0].to)
		assert.Contains(t, mailer.sent[0].body, "https://app.example.com/squad")
		assert.True(t, jobs.tables[KindSquad]["sq1_email-24h"].Executed)

		res = s.ProcessScheduledJobs(ctx)
		assert.Equal(t, 0, res.Processed)

		c.Set(callTime.Add(time.Minute))
		res = s.ProcessScheduledJobs(ctx)
		assert.Equal(t, SweepResult{Processed: 3, Executed: 3}, res)
		assert.Equal(t, 6, notifier.count())
		assert.Len(t, mailer.sent, 3)
	})

	t.Run("moved call discards jobs without running them", func(t *testing.T) {
		s, jobs, notifier, _, subjects, c := newFixture(t, Options{})
		moved := callTime.Add(2 * time.Hour)
		subjects.subject = &Subject{NextCallAt: &moved, Recipients: members}
		c.Set(callTime.Add(time.Minute))

		res := s.ProcessScheduledJobs(ctx)
		assert.Equal(t, SweepResult{Processed: 5, Skipped: 5}, res)
		assert.Zero(t, notifier.count())
		assert.Empty(t, jobs.ids(KindSquad))
	})

	t.Run("deleted subject discards jobs", func(t *testing.T) {
		s, jobs, _, _, subjects, c := newFixture(t, Options{})
		subjects.subject = nil
		c.Set(callTime.Add(time.Minute))

		res := s.ProcessScheduledJobs(ctx)
		assert.Equal(t, 5, res.Skipped)
		assert.Empty(t, jobs.ids(KindSquad))
	})

	t.Run("failed jobs retry until the attempt cap", func(t *testing.T) {
		s, jobs, notifier, _, _, c := newFixture(t, Options{MaxAttempts: 2})
		notifier.failFor["*"] = true
		c.Set(callTime.Add(-30 * time.Minute))

		res := s.ProcessScheduledJobs(ctx)
		// the two email jobs still go out; both notify jobs fail for every member
		assert.Equal(t, SweepResult{Processed: 4, Executed: 2, Errors: 2}, res)
		job := jobs.tables[KindSquad]["sq1_notify-1h"]
		assert.False(t, job.Executed)
		assert.Equal(t, 1, job.Attempts)
		assert.Contains(t, job.Error, "notification store unavailable")

		res = s.ProcessScheduledJobs(ctx)
		assert.Equal(t, SweepResult{Processed: 2, Errors: 2, Abandoned: 2}, res)
		assert.True(t, jobs.tables[KindSquad]["sq1_notify-1h"].Abandoned)

		res = s.ProcessScheduledJobs(ctx)
		assert.Equal(t, 0, res.Processed)
	})

	t.Run("one failing member does not fail the job", func(t *testing.T) {
		s, jobs, notifier, _, _, c := newFixture(t, Options{})
		notifier.failFor["u2"] = true
		c.Set(callTime.Add(time.Minute))

		res := s.ProcessScheduledJobs(ctx)
		assert.Equal(t, 5, res.Executed)
		assert.Equal(t, 3, notifier.count())
		assert.True(t, jobs.tables[KindSquad]["sq1_notify-live"].Executed)
	})

	t.Run("negative cap retries forever", func(t *testing.T) {
		s, jobs, notifier, _, _, c := newFixture(t, Options{MaxAttempts: -1})
		notifier.failFor["*"] = true
		c.Set(callTime.Add(time.Minute))
		for i := 0; i < 12; i++ {
			s.ProcessScheduledJobs(ctx)
		}
		job := jobs.tables[KindSquad]["sq1_notify-live"]
		assert.Equal(t, 12, job.Attempts)
		assert.False(t, job.Abandoned)
	})

	t.Run("query failure is counted", func(t *testing.T) {
		s, jobs, _, _, _, _ := newFixture(t, Options{})
		jobs.dueErr = errors.New("connection reset")
		res := s.ProcessScheduledJobs(ctx)
		assert.Equal(t, len(Kinds), res.Errors)
	})

	t.Run("resolver failure counts as a retryable error", func(t *testing.T) {
		s, jobs, _, _, subjects, c := newFixture(t, Options{})
		subjects.err = errors.New("timeout")
		c.Set(callTime.Add(time.Minute))
		res := s.ProcessScheduledJobs(ctx)
		assert.Equal(t, SweepResult{Processed: 5, Errors: 5}, res)
		assert.Len(t, jobs.ids(KindSquad), 5)
	})
}

type fakeLocker struct {
	held     bool
	err      error
	unlocked int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return !l.held, nil
}

func (l *fakeLocker) Unlock(context.Context, string) { l.unlocked++ }

func TestSweepLock(t *testing.T) {
	ctx := context.Background()
	jobs := newMemJobs()
	now := callTime.Add(time.Minute)
	next := callTime
	notifier := &recordingNotifier{}
	subjects := &staticSubjects{subject: &Subject{NextCallAt: &next, Recipients: []models.User{{ID: "u1"}}}}
	require.NoError(t, jobs.Upsert(ctx, KindSquad, []models.CallJob{{
		ID: "sq1_notify-live", SubjectID: "sq1", JobType: string(NotifyLive), ScheduledTime: callTime, CallDateTime: callTime,
	}}))

	t.Run("held lock skips the sweep", func(t *testing.T) {
		locker := &fakeLocker{held: true}
		s, err := NewScheduler(jobs, subjects, notifier, nil, Options{Locker: locker, Now: func() time.Time { return now }})
		require.NoError(t, err)
		res := s.ProcessScheduledJobs(ctx)
		assert.True(t, res.Locked)
		assert.Zero(t, res.Processed)
		assert.Zero(t, locker.unlocked)
	})

	t.Run("lock error runs unlocked", func(t *testing.T) {
		locker := &fakeLocker{err: errors.New("redis down")}
		s, err := NewScheduler(jobs, subjects, notifier, nil, Options{Locker: locker, Now: func() time.Time { return now }})
		require.NoError(t, err)
		res := s.ProcessScheduledJobs(ctx)
		assert.Equal(t, 1, res.Executed)
	})

	t.Run("acquired lock is released", func(t *testing.T) {
		locker := &fakeLocker{}
		s, err := NewScheduler(jobs, subjects, notifier, nil, Options{Locker: locker, Now: func() time.Time { return now }})
		require.NoError(t, err)
		s.ProcessScheduledJobs(ctx)
		assert.Equal(t, 1, locker.unlocked)
	})
}
