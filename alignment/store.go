package alignment

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/slimcircle/models"
)

// GormStore implements Store and Sources on a relational database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetAlignment(ctx context.Context, userID, date string) (*models.DailyAlignment, error) {
	var rec models.DailyAlignment
	err := s.db.WithContext(ctx).Where("id = ?", models.AlignmentID(userID, date)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveAlignment overwrites the record by id. created_at keeps the value of the first insert.
func (s *GormStore) SaveAlignment(ctx context.Context, rec *models.DailyAlignment) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
}

func (s *GormStore) GetSummary(ctx context.Context, userID string) (*models.AlignmentSummary, error) {
	var summary models.AlignmentSummary
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *GormStore) SaveSummary(ctx context.Context, summary *models.AlignmentSummary) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(summary).Error
}

func (s *GormStore) SquadIDForUser(ctx context.Context, userID string) (string, error) {
	var user models.User
	err := s.db.WithContext(ctx).Select("id", "squad_id").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if user.SquadID == nil {
		return "", nil
	}
	return *user.SquadID, nil
}

func (s *GormStore) SquadMembers(ctx context.Context, squadID string) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Where("squad_id = ?", squadID).Order("first_name").Find(&users).Error
	return users, err
}

func (s *GormStore) AlignmentsOn(ctx context.Context, userIDs []string, date string) ([]models.DailyAlignment, error) {
	var recs []models.DailyAlignment
	err := s.db.WithContext(ctx).Where("user_id IN ? AND date = ?", userIDs, date).Find(&recs).Error
	return recs, err
}

func (s *GormStore) Summaries(ctx context.Context, userIDs []string) ([]models.AlignmentSummary, error) {
	var summaries []models.AlignmentSummary
	err := s.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&summaries).Error
	return summaries, err
}

func (s *GormStore) exists(ctx context.Context, model any, query string, args ...any) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where(query, args...).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) MorningCheckInDone(ctx context.Context, userID, date string) (bool, error) {
	return s.exists(ctx, &models.CheckIn{}, "user_id = ? AND date = ? AND type = ?", userID, date, models.CheckInMorning)
}

// FocusTasksSet only sees tasks still on the focus list; the sticky flag covers tasks moved to backlog later.
func (s *GormStore) FocusTasksSet(ctx context.Context, userID, date string) (bool, error) {
	return s.exists(ctx, &models.Task{}, "user_id = ? AND date = ? AND list_type = ?", userID, date, models.TaskListFocus)
}

func (s *GormStore) CircleInteracted(ctx context.Context, userID, date string) (bool, error) {
	return s.exists(ctx, &models.CircleInteraction{}, "user_id = ? AND date = ? AND count > 0", userID, date)
}

func (s *GormStore) HasActiveGoal(ctx context.Context, userID, _ string) (bool, error) {
	var user models.User
	err := s.db.WithContext(ctx).Select("id", "goal", "goal_status").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.HasActiveGoal(), nil
}

func (s *GormStore) MealsLogged(ctx context.Context, userID, date string) (bool, error) {
	return s.exists(ctx, &models.DailyEntry{}, "user_id = ? AND date = ? AND meals_logged > 0", userID, date)
}

func (s *GormStore) WorkoutLogged(ctx context.Context, userID, date string) (bool, error) {
	return s.exists(ctx, &models.DailyEntry{}, "user_id = ? AND date = ? AND workout_minutes > 0", userID, date)
}
