// Package alignment scores each member's day from a configurable set of behaviors and
// keeps the cross-day streak that bridges weekends.
package alignment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/observability"
	"github.com/cppla/slimcircle/utils"
)

const (
	squadCacheTTL     = 5 * time.Minute
	invalidateTimeout = 5 * time.Second
)

// Store persists alignment records and answers squad membership questions.
// Get methods return nil, nil when the record does not exist.
type Store interface {
	GetAlignment(ctx context.Context, userID, date string) (*models.DailyAlignment, error)
	SaveAlignment(ctx context.Context, rec *models.DailyAlignment) error
	GetSummary(ctx context.Context, userID string) (*models.AlignmentSummary, error)
	SaveSummary(ctx context.Context, summary *models.AlignmentSummary) error
	SquadIDForUser(ctx context.Context, userID string) (string, error)
	SquadMembers(ctx context.Context, squadID string) ([]models.User, error)
	AlignmentsOn(ctx context.Context, userIDs []string, date string) ([]models.DailyAlignment, error)
	Summaries(ctx context.Context, userIDs []string) ([]models.AlignmentSummary, error)
}

// Cache holds the squad aggregate view.
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration)
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// Options tune an Engine. Zero values pick server local time, the global logger and no cache.
type Options struct {
	Cache    Cache
	Location *time.Location
	Now      func() time.Time
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Engine maintains DailyAlignment and AlignmentSummary records.
type Engine struct {
	store     Store
	behaviors []Behavior
	cache     Cache
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
	metrics   *observability.Metrics

	background sync.WaitGroup
}

// NewEngine builds an engine over a non-empty behavior set.
func NewEngine(store Store, behaviors []Behavior, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("alignment store is required")
	}
	if len(behaviors) == 0 {
		return nil, errors.New("at least one alignment behavior is required")
	}
	e := &Engine{
		store:     store,
		behaviors: behaviors,
		cache:     opts.Cache,
		loc:       opts.Location,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = utils.Logger
	}
	return e, nil
}

// Behaviors returns the tracked behavior set.
func (e *Engine) Behaviors() []Behavior {
	return e.behaviors
}

// Today is the current calendar date in the engine's zone.
func (e *Engine) Today() string {
	return utils.LocalDate(e.now(), e.loc)
}

// Wait blocks until background cache invalidations finish.
func (e *Engine) Wait() {
	e.background.Wait()
}

// UpdateAlignmentForToday merges partial flag updates into today's record.
//
// Omitted sticky flags that are not yet true, and every non-sticky flag, are re-read from
// their sources. The streak moves only when the day turns fully aligned in this call.
// A store failure returns nil and the error; callers keep their previous state.
func (e *Engine) UpdateAlignmentForToday(ctx context.Context, userID string, updates models.AlignmentFlags) (*models.DailyAlignment, error) {
	today := e.Today()
	existing, err := e.store.GetAlignment(ctx, userID, today)
	if err != nil {
		e.metrics.AlignmentUpdate("error")
		return nil, fmt.Errorf("load alignment: %w", err)
	}

	stored := storedFlags(existing)
	probed := e.probe(ctx, userID, today, stored, updates)
	merged := MergeFlags(e.behaviors, stored, updates, probed)

	rec, err := e.apply(ctx, userID, today, existing, merged)
	if err != nil {
		e.metrics.AlignmentUpdate("error")
		return nil, err
	}
	e.metrics.AlignmentUpdate("saved")
	return rec, nil
}

// InitializeAlignmentForToday makes today's record reflect current truth, writing only when
// something changed. A missing record is computed from scratch.
func (e *Engine) InitializeAlignmentForToday(ctx context.Context, userID string) (*models.DailyAlignment, error) {
	today := e.Today()
	existing, err := e.store.GetAlignment(ctx, userID, today)
	if err != nil {
		e.metrics.AlignmentUpdate("error")
		return nil, fmt.Errorf("load alignment: %w", err)
	}
	if existing == nil {
		return e.UpdateAlignmentForToday(ctx, userID, nil)
	}

	stored := storedFlags(existing)
	probed := e.probe(ctx, userID, today, stored, nil)
	merged := MergeFlags(e.behaviors, stored, nil, probed)
	if sameFlags(e.behaviors, stored, merged) && Score(e.behaviors, merged) == existing.AlignmentScore {
		e.metrics.AlignmentUpdate("unchanged")
		return existing, nil
	}

	rec, err := e.apply(ctx, userID, today, existing, merged)
	if err != nil {
		e.metrics.AlignmentUpdate("error")
		return nil, err
	}
	e.metrics.AlignmentUpdate("saved")
	return rec, nil
}

// probe queries sources for non-sticky flags and for sticky flags still false everywhere.
// A failing sticky source counts as false; a failing non-sticky source leaves the flag out.
func (e *Engine) probe(ctx context.Context, userID, date string, stored, updates models.AlignmentFlags) models.AlignmentFlags {
	probed := make(models.AlignmentFlags, len(e.behaviors))
	for _, b := range e.behaviors {
		if b.Source == nil {
			continue
		}
		if b.Sticky && (stored[b.Key] || updates[b.Key]) {
			continue
		}
		v, err := b.Source(ctx, userID, date)
		if err != nil {
			e.logger.Warn("alignment source failed",
				zap.String("user_id", userID),
				zap.String("behavior", b.Key),
				zap.Error(err))
			if !b.Sticky {
				continue
			}
			v = false
		}
		probed[b.Key] = v
	}
	return probed
}

func (e *Engine) apply(ctx context.Context, userID, today string, existing *models.DailyAlignment, flags models.AlignmentFlags) (*models.DailyAlignment, error) {
	score := Score(e.behaviors, flags)
	rec := &models.DailyAlignment{
		ID:             models.AlignmentID(userID, today),
		UserID:         userID,
		Date:           today,
		Flags:          datatypes.NewJSONType(flags),
		AlignmentScore: score,
		FullyAligned:   score == 100,
	}
	wasAligned := false
	if existing != nil {
		wasAligned = existing.FullyAligned
		rec.CreatedAt = existing.CreatedAt
		rec.StreakOnThisDay = existing.StreakOnThisDay
	}

	if rec.FullyAligned && !wasAligned {
		streak, err := e.updateStreak(ctx, userID, today)
		if err != nil {
			return nil, err
		}
		rec.StreakOnThisDay = streak
		e.metrics.FullAlignment()
	}

	if err := e.store.SaveAlignment(ctx, rec); err != nil {
		return nil, fmt.Errorf("save alignment: %w", err)
	}

	e.invalidateSquad(userID)
	return rec, nil
}

func (e *Engine) updateStreak(ctx context.Context, userID, today string) (int, error) {
	summary, err := e.store.GetSummary(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load alignment summary: %w", err)
	}
	if summary == nil {
		summary = &models.AlignmentSummary{UserID: userID}
	}

	streak, write := NextStreak(summary.CurrentStreak, summary.LastAlignedDate, today)
	if !write {
		return streak, nil
	}
	summary.CurrentStreak = streak
	summary.LastAlignedDate = today
	if err := e.store.SaveSummary(ctx, summary); err != nil {
		return 0, fmt.Errorf("save alignment summary: %w", err)
	}
	e.logger.Info("alignment streak updated",
		zap.String("user_id", userID),
		zap.String("date", today),
		zap.Int("streak", streak))
	return streak, nil
}

// invalidateSquad drops the cached squad view on a tracked background goroutine.
// It never blocks the caller and failures are only logged.
func (e *Engine) invalidateSquad(userID string) {
	if e.cache == nil {
		return
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()

		squadID, err := e.store.SquadIDForUser(ctx, userID)
		if err != nil {
			e.logger.Warn("squad lookup for cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
			return
		}
		if squadID == "" {
			return
		}
		if err := e.cache.InvalidatePrefix(ctx, SquadCachePrefix(squadID)); err != nil {
			e.logger.Warn("squad alignment cache invalidation failed", zap.String("squad_id", squadID), zap.Error(err))
		}
	}()
}

// Summary returns the user's streak summary with the streak as it stands today.
func (e *Engine) Summary(ctx context.Context, userID string) (*SummaryView, error) {
	summary, err := e.store.GetSummary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load alignment summary: %w", err)
	}
	view := &SummaryView{UserID: userID, Today: e.Today()}
	if summary != nil {
		view.StoredStreak = summary.CurrentStreak
		view.LastAlignedDate = summary.LastAlignedDate
		view.CurrentStreak = EffectiveStreak(summary.CurrentStreak, summary.LastAlignedDate, view.Today)
	}
	return view, nil
}

// SummaryView is the streak as shown to the user.
type SummaryView struct {
	UserID          string `json:"user_id"`
	Today           string `json:"today"`
	CurrentStreak   int    `json:"current_streak"`
	StoredStreak    int    `json:"stored_streak"`
	LastAlignedDate string `json:"last_aligned_date"`
}

func storedFlags(rec *models.DailyAlignment) models.AlignmentFlags {
	if rec == nil {
		return models.AlignmentFlags{}
	}
	flags := rec.Flags.Data()
	if flags == nil {
		return models.AlignmentFlags{}
	}
	return flags
}
