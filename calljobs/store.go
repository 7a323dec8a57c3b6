package calljobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/slimcircle/models"
)

// GormJobStore keeps jobs in one table per kind.
type GormJobStore struct {
	db *gorm.DB
}

func NewGormJobStore(db *gorm.DB) *GormJobStore {
	return &GormJobStore{db: db}
}

func (s *GormJobStore) table(ctx context.Context, kind Kind) (*gorm.DB, error) {
	name, err := kind.Table()
	if err != nil {
		return nil, err
	}
	return s.db.WithContext(ctx).Table(name), nil
}

// Upsert overwrites jobs by id, resetting execution state.
func (s *GormJobStore) Upsert(ctx context.Context, kind Kind, jobs []models.CallJob) error {
	if len(jobs) == 0 {
		return nil
	}
	tx, err := s.table(ctx, kind)
	if err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&jobs).Error
}

func (s *GormJobStore) Delete(ctx context.Context, kind Kind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.table(ctx, kind)
	if err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.CallJob{}).Error
}

// Due returns unexecuted, non-abandoned jobs at or before now, oldest first.
func (s *GormJobStore) Due(ctx context.Context, kind Kind, now time.Time, limit int) ([]models.CallJob, error) {
	tx, err := s.table(ctx, kind)
	if err != nil {
		return nil, err
	}
	var jobs []models.CallJob
	err = tx.Where("executed = ? AND abandoned = ? AND scheduled_time <= ?", false, false, now.UTC()).
		Order("scheduled_time ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (s *GormJobStore) MarkExecuted(ctx context.Context, kind Kind, id string, at time.Time) error {
	tx, err := s.table(ctx, kind)
	if err != nil {
		return err
	}
	return tx.Where("id = ?", id).Updates(map[string]any{
		"executed":    true,
		"executed_at": at.UTC(),
		"error":       "",
		"updated_at":  time.Now().UTC(),
	}).Error
}

func (s *GormJobStore) MarkFailed(ctx context.Context, kind Kind, id, reason string, attempts int, abandoned bool) error {
	tx, err := s.table(ctx, kind)
	if err != nil {
		return err
	}
	return tx.Where("id = ?", id).Updates(map[string]any{
		"error":      reason,
		"attempts":   attempts,
		"abandoned":  abandoned,
		"updated_at": time.Now().UTC(),
	}).Error
}

// Get loads one job, or nil when absent.
func (s *GormJobStore) Get(ctx context.Context, kind Kind, id string) (*models.CallJob, error) {
	tx, err := s.table(ctx, kind)
	if err != nil {
		return nil, err
	}
	var job models.CallJob
	err = tx.Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Pending counts jobs still waiting to run.
func (s *GormJobStore) Pending(ctx context.Context, kind Kind) (int64, error) {
	tx, err := s.table(ctx, kind)
	if err != nil {
		return 0, err
	}
	var n int64
	err = tx.Where("executed = ? AND abandoned = ?", false, false).Count(&n).Error
	return n, err
}

// GormSubjects resolves squads and coaching pairs from their tables.
type GormSubjects struct {
	db *gorm.DB
}

func NewGormSubjects(db *gorm.DB) *GormSubjects {
	return &GormSubjects{db: db}
}

func (r *GormSubjects) Resolve(ctx context.Context, kind Kind, job models.CallJob) (*Subject, error) {
	switch kind {
	case KindSquad:
		return r.squad(ctx, job.SubjectID)
	case KindCoaching:
		return r.coaching(ctx, job.SubjectID, job.CoachID)
	}
	return nil, ErrUnknownKind
}

func (r *GormSubjects) squad(ctx context.Context, squadID string) (*Subject, error) {
	var squad models.Squad
	err := r.db.WithContext(ctx).Where("id = ?", squadID).First(&squad).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var members []models.User
	if err := r.db.WithContext(ctx).Where("squad_id = ?", squadID).Find(&members).Error; err != nil {
		return nil, err
	}
	return &Subject{NextCallAt: squad.NextCallAt, Recipients: members}, nil
}

// coaching treats a changed coach as a missing subject.
func (r *GormSubjects) coaching(ctx context.Context, userID, coachID string) (*Subject, error) {
	var rel models.CoachingRelationship
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if coachID != "" && rel.CoachID != coachID {
		return nil, nil
	}
	var user models.User
	err = r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Subject{NextCallAt: rel.NextCallAt, Recipients: []models.User{user}}, nil
}
