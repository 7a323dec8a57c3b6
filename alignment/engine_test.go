package alignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cppla/slimcircle/models"
)

type fakeSources struct {
	mu     sync.Mutex
	values map[string]bool
	errs   map[string]error
	calls  map[string]int
}

func newFakeSources() *fakeSources {
	return &fakeSources{values: map[string]bool{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeSources) set(key string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = v
}

func (f *fakeSources) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

func (f *fakeSources) get(key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if err := f.errs[key]; err != nil {
		return false, err
	}
	return f.values[key], nil
}

func (f *fakeSources) MorningCheckInDone(context.Context, string, string) (bool, error) {
	return f.get(MorningCheckIn)
}
func (f *fakeSources) FocusTasksSet(context.Context, string, string) (bool, error) {
	return f.get(TasksPlanned)
}
func (f *fakeSources) CircleInteracted(context.Context, string, string) (bool, error) {
	return f.get(CircleInteraction)
}
func (f *fakeSources) HasActiveGoal(context.Context, string, string) (bool, error) {
	return f.get(ActiveGoal)
}
func (f *fakeSources) MealsLogged(context.Context, string, string) (bool, error) {
	return f.get(MealsLogged)
}
func (f *fakeSources) WorkoutLogged(context.Context, string, string) (bool, error) {
	return f.get(WorkoutLogged)
}

type memStore struct {
	mu           sync.Mutex
	alignments   map[string]models.DailyAlignment
	summaries    map[string]models.AlignmentSummary
	users        map[string]models.User
	alignWrites  int
	summaryWrite int
	saveErr      error
	summaryErr   error
}

func newMemStore() *memStore {
	return &memStore{
		alignments: map[string]models.DailyAlignment{},
		summaries:  map[string]models.AlignmentSummary{},
		users:      map[string]models.User{},
	}
}

func (m *memStore) GetAlignment(_ context.Context, userID, date string) (*models.DailyAlignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.alignments[models.AlignmentID(userID, date)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) SaveAlignment(_ context.Context, rec *models.DailyAlignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.alignWrites++
	m.alignments[rec.ID] = *rec
	return nil
}

func (m *memStore) GetSummary(_ context.Context, userID string) (*models.AlignmentSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) SaveSummary(_ context.Context, summary *models.AlignmentSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summaryErr != nil {
		return m.summaryErr
	}
	m.summaryWrite++
	m.summaries[summary.UserID] = *summary
	return nil
}

func (m *memStore) SquadIDForUser(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.SquadID == nil {
		return "", nil
	}
	return *u.SquadID, nil
}

func (m *memStore) SquadMembers(_ context.Context, squadID string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range []string{"u1", "u2", "u3"} {
		if u, ok := m.users[id]; ok && u.SquadID != nil && *u.SquadID == squadID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) AlignmentsOn(_ context.Context, userIDs []string, date string) ([]models.DailyAlignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailyAlignment
	for _, id := range userIDs {
		if rec, ok := m.alignments[models.AlignmentID(id, date)]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) Summaries(_ context.Context, userIDs []string) ([]models.AlignmentSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AlignmentSummary
	for _, id := range userIDs {
		if s, ok := m.summaries[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type memCache struct {
	mu          sync.Mutex
	entries     map[string]any
	invalidated []string
}

func (c *memCache) GetJSON(_ context.Context, key string, out any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return false
	}
	*(out.(*SquadView)) = *(v.(*SquadView))
	return true
}

func (c *memCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]any{}
	}
	c.entries[key] = v
}

func (c *memCache) InvalidatePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, prefix)
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	return nil
}

func dayAt(date string) func() time.Time {
	t, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		panic(err)
	}
	t = t.Add(9 * time.Hour)
	return func() time.Time { return t }
}

func newTestEngine(t *testing.T, store *memStore, src *fakeSources, date string, cache Cache) *Engine {
	t.Helper()
	behaviors, err := Behaviors(nil, src)
	require.NoError(t, err)
	e, err := NewEngine(store, behaviors, Options{Cache: cache, Location: time.UTC, Now: dayAt(date)})
	require.NoError(t, err)
	return e
}

func alignAll(src *fakeSources) {
	for _, k := range DefaultBehaviors {
		src.set(k, true)
	}
}

func TestNewEngineRequiresBehaviors(t *testing.T) {
	_, err := NewEngine(newMemStore(), nil, Options{})
	assert.Error(t, err)
	_, err = NewEngine(nil, testBehaviors(), Options{})
	assert.Error(t, err)
}

func TestUpdateAlignmentForToday(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a record with probed flags", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		src.set(MorningCheckIn, true)
		e := newTestEngine(t, store, src, wednesday, nil)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, "u1_"+wednesday, rec.ID)
		assert.Equal(t, wednesday, rec.Date)
		assert.Equal(t, 25, rec.AlignmentScore)
		assert.False(t, rec.FullyAligned)
		assert.Equal(t, models.AlignmentFlags{MorningCheckIn: true, TasksPlanned: false, CircleInteraction: false, ActiveGoal: false}, rec.Flags.Data())
	})

	t.Run("sticky flag stays true after its source goes false", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		e := newTestEngine(t, store, src, wednesday, nil)

		_, err := e.UpdateAlignmentForToday(ctx, "u1", models.AlignmentFlags{TasksPlanned: true})
		require.NoError(t, err)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", models.AlignmentFlags{TasksPlanned: false})
		require.NoError(t, err)
		assert.True(t, rec.Flags.Data()[TasksPlanned])
		assert.Equal(t, 25, rec.AlignmentScore)
	})

	t.Run("active goal follows its source back to false", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		src.set(ActiveGoal, true)
		e := newTestEngine(t, store, src, wednesday, nil)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		assert.True(t, rec.Flags.Data()[ActiveGoal])

		src.set(ActiveGoal, false)
		rec, err = e.UpdateAlignmentForToday(ctx, "u1", models.AlignmentFlags{ActiveGoal: true})
		require.NoError(t, err)
		assert.False(t, rec.Flags.Data()[ActiveGoal])
		assert.Equal(t, 0, rec.AlignmentScore)
	})

	t.Run("stored sticky flags are not re-probed", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		src.set(MorningCheckIn, true)
		e := newTestEngine(t, store, src, wednesday, nil)

		_, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		_, err = e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, src.calls[MorningCheckIn])
		assert.Equal(t, 2, src.calls[ActiveGoal])
	})

	t.Run("failing non-sticky source keeps the stored value", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		src.set(ActiveGoal, true)
		e := newTestEngine(t, store, src, wednesday, nil)

		_, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)

		src.fail(ActiveGoal, errors.New("timeout"))
		rec, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		assert.True(t, rec.Flags.Data()[ActiveGoal])
	})

	t.Run("store failure returns no record", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		store.saveErr = errors.New("db down")
		e := newTestEngine(t, store, src, wednesday, nil)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", models.AlignmentFlags{MorningCheckIn: true})
		assert.Nil(t, rec)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestStreakTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("streak moves once per day on the aligned transition", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		alignAll(src)
		e := newTestEngine(t, store, src, wednesday, nil)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		assert.True(t, rec.FullyAligned)
		assert.Equal(t, 100, rec.AlignmentScore)
		assert.Equal(t, 1, rec.StreakOnThisDay)

		rec, err = e.UpdateAlignmentForToday(ctx, "u1", models.AlignmentFlags{MorningCheckIn: true})
		require.NoError(t, err)
		assert.Equal(t, 1, rec.StreakOnThisDay)
		assert.Equal(t, 1, store.summaryWrite)
		assert.Equal(t, models.AlignmentSummary{UserID: "u1", CurrentStreak: 1, LastAlignedDate: wednesday}, store.summaries["u1"])
	})

	t.Run("friday carries into monday", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		store.summaries["u1"] = models.AlignmentSummary{UserID: "u1", CurrentStreak: 3, LastAlignedDate: friday}
		alignAll(src)
		e := newTestEngine(t, store, src, monday, nil)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, 4, rec.StreakOnThisDay)
		assert.Equal(t, 4, store.summaries["u1"].CurrentStreak)
		assert.Equal(t, monday, store.summaries["u1"].LastAlignedDate)
	})

	t.Run("missing monday resets tuesday", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		store.summaries["u1"] = models.AlignmentSummary{UserID: "u1", CurrentStreak: 3, LastAlignedDate: friday}
		alignAll(src)
		e := newTestEngine(t, store, src, tuesday, nil)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, rec.StreakOnThisDay)
	})

	t.Run("weekend alignment leaves the summary untouched", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		store.summaries["u1"] = models.AlignmentSummary{UserID: "u1", CurrentStreak: 3, LastAlignedDate: friday}
		alignAll(src)
		e := newTestEngine(t, store, src, saturday, nil)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		require.NoError(t, err)
		assert.True(t, rec.FullyAligned)
		assert.Equal(t, 0, store.summaryWrite)
		assert.Equal(t, friday, store.summaries["u1"].LastAlignedDate)
	})

	t.Run("summary failure returns no record", func(t *testing.T) {
		store, src := newMemStore(), newFakeSources()
		store.summaryErr = errors.New("write conflict")
		alignAll(src)
		e := newTestEngine(t, store, src, wednesday, nil)

		rec, err := e.UpdateAlignmentForToday(ctx, "u1", nil)
		assert.Nil(t, rec)
		assert.ErrorContains(t, err, "write conflict")
		assert.Equal(t, 0, store.alignWrites)
	})
}

func TestInitializeAlignmentForToday(t *testing.T) {
	ctx := context.Background()
	store, src := newMemStore(), newFakeSources()
	src.set(MorningCheckIn, true)
	e := newTestEngine(t, store, src, wednesday, nil)

	rec, err := e.InitializeAlignmentForToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 25, rec.AlignmentScore)
	assert.Equal(t, 1, store.alignWrites)

	_, err = e.InitializeAlignmentForToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.alignWrites, "unchanged day must not be rewritten")

	src.set(CircleInteraction, true)
	rec, err = e.InitializeAlignmentForToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, rec.AlignmentScore)
	assert.Equal(t, 2, store.alignWrites)
}

func TestSummaryView(t *testing.T) {
	store, src := newMemStore(), newFakeSources()
	store.summaries["u1"] = models.AlignmentSummary{UserID: "u1", CurrentStreak: 6, LastAlignedDate: friday}

	view, err := newTestEngine(t, store, src, monday, nil).Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 6, view.CurrentStreak)

	view, err = newTestEngine(t, store, src, tuesday, nil).Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, view.CurrentStreak)
	assert.Equal(t, 6, view.StoredStreak)
}

func TestSquadAlignmentAndInvalidation(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	squad := "sq1"
	store, src := newMemStore(), newFakeSources()
	store.users["u1"] = models.User{ID: "u1", FirstName: "Ann", SquadID: &squad}
	store.users["u2"] = models.User{ID: "u2", FirstName: "Bo", SquadID: &squad}
	store.users["u3"] = models.User{ID: "u3", FirstName: "Cy"}
	cache := &memCache{}
	e := newTestEngine(t, store, src, wednesday, cache)

	alignAll(src)
	_, err := e.UpdateAlignmentForToday(ctx, "u2", nil)
	require.NoError(t, err)
	e.Wait()

	view, err := e.SquadAlignment(ctx, squad)
	require.NoError(t, err)
	require.Len(t, view.Members, 2)
	assert.Equal(t, "u2", view.Members[0].UserID)
	assert.Equal(t, 1, view.Members[0].CurrentStreak)
	assert.Equal(t, 1, view.AlignedCount)
	assert.Equal(t, 50, view.AverageScore)

	_, err = e.UpdateAlignmentForToday(ctx, "u1", nil)
	require.NoError(t, err)
	e.Wait()

	cache.mu.Lock()
	assert.Contains(t, cache.invalidated, SquadCachePrefix(squad))
	assert.Empty(t, cache.entries)
	cache.mu.Unlock()

	view, err = e.SquadAlignment(ctx, squad)
	require.NoError(t, err)
	assert.Equal(t, 2, view.AlignedCount)

	_, err = e.UpdateAlignmentForToday(ctx, "u3", nil)
	require.NoError(t, err)
	e.Wait()
}
