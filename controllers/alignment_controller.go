package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/slimcircle/alignment"
	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/utils"
)

// AlignmentController serves the daily alignment score, streak and squad view.
type AlignmentController struct {
	db     *gorm.DB
	engine *alignment.Engine
}

// NewAlignmentController creates a new controller instance.
func NewAlignmentController(db *gorm.DB, engine *alignment.Engine) *AlignmentController {
	return &AlignmentController{db: db, engine: engine}
}

// GetToday makes today's record current and returns it.
func (a *AlignmentController) GetToday(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	rec, err := a.engine.InitializeAlignmentForToday(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load alignment")
		return
	}

	utils.Success(ctx, gin.H{
		"alignment": newAlignmentResponse(rec),
		"behaviors": behaviorKeys(a.engine.Behaviors()),
	})
}

// UpdateToday merges client-reported flags into today's record.
func (a *AlignmentController) UpdateToday(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req struct {
		Flags models.AlignmentFlags `json:"flags" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	known := make(map[string]bool, len(a.engine.Behaviors()))
	for _, b := range a.engine.Behaviors() {
		known[b.Key] = true
	}
	for key := range req.Flags {
		if !known[key] {
			utils.Error(ctx, http.StatusBadRequest, 40011, "unknown behavior: "+key)
			return
		}
	}

	rec, err := a.engine.UpdateAlignmentForToday(ctx.Request.Context(), userID, req.Flags)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to update alignment")
		return
	}
	utils.Success(ctx, newAlignmentResponse(rec))
}

// Summary returns the user's streak.
func (a *AlignmentController) Summary(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	view, err := a.engine.Summary(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to load streak")
		return
	}
	utils.Success(ctx, view)
}

// SquadAlignment returns today's aggregate for a squad the caller belongs to or coaches.
func (a *AlignmentController) SquadAlignment(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	squadID := ctx.Param("id")

	var squad models.Squad
	if err := a.db.WithContext(ctx.Request.Context()).Where("id = ?", squadID).First(&squad).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "squad not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to load squad")
		return
	}

	if squad.CoachID != userID {
		var member int64
		if err := a.db.WithContext(ctx.Request.Context()).Model(&models.User{}).
			Where("id = ? AND squad_id = ?", userID, squadID).
			Count(&member).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to load squad")
			return
		}
		if member == 0 {
			utils.Error(ctx, http.StatusForbidden, 40310, "not a member of this squad")
			return
		}
	}

	view, err := a.engine.SquadAlignment(ctx.Request.Context(), squadID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50014, "failed to load squad alignment")
		return
	}
	utils.Success(ctx, view)
}
