package controllers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/slimcircle/calljobs"
	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/utils"
)

// PendingCounter reports how many reminders are still waiting per call kind.
type PendingCounter interface {
	Pending(ctx context.Context, kind calljobs.Kind) (int64, error)
}

// StatsController provides service-wide counts.
type StatsController struct {
	db     *gorm.DB
	jobs   PendingCounter
	engine AlignmentUpdater
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, jobs PendingCounter, engine AlignmentUpdater) *StatsController {
	return &StatsController{db: db, jobs: jobs, engine: engine}
}

// GetStats returns user, squad and alignment counts plus pending reminder jobs.
func (s *StatsController) GetStats(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	var userCount int64
	var squadCount int64
	var alignedToday int64

	if err := s.db.WithContext(reqCtx).Model(&models.User{}).Count(&userCount).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		userCount = 0
	}

	if err := s.db.WithContext(reqCtx).Model(&models.Squad{}).Count(&squadCount).Error; err != nil {
		squadCount = 0
	}

	today := s.engine.Today()
	if err := s.db.WithContext(reqCtx).Model(&models.DailyAlignment{}).
		Where("date = ? AND fully_aligned = ?", today, true).
		Count(&alignedToday).Error; err != nil {
		alignedToday = 0
	}

	pending := make(gin.H, len(calljobs.Kinds))
	for _, kind := range calljobs.Kinds {
		n, err := s.jobs.Pending(reqCtx, kind)
		if err != nil {
			utils.Logger.Warn("pending call job count failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		pending[string(kind)] = n
	}

	utils.Success(ctx, gin.H{
		"date":                today,
		"user_count":          userCount,
		"squad_count":         squadCount,
		"fully_aligned_today": alignedToday,
		"pending_call_jobs":   pending,
	})
}
