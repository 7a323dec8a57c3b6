package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/slimcircle/calljobs"
	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/utils"
)

// CallScheduler keeps reminder jobs in step with call edits.
type CallScheduler interface {
	Reschedule(ctx context.Context, spec calljobs.CallSpec) (int, error)
	CancelCallJobs(ctx context.Context, kind calljobs.Kind, subjectID, coachID string) error
}

// CallController manages squad and coaching call times.
type CallController struct {
	db        *gorm.DB
	scheduler CallScheduler
	now       func() time.Time
}

// NewCallController creates a new CallController instance.
func NewCallController(db *gorm.DB, scheduler CallScheduler) *CallController {
	return &CallController{db: db, scheduler: scheduler, now: time.Now}
}

type callRequest struct {
	CallAt   time.Time `json:"call_at" binding:"required"`
	Timezone string    `json:"timezone" binding:"max=64"`
	Location string    `json:"location" binding:"max=512"`
	Title    string    `json:"title" binding:"max=255"`
}

// bindCall validates the payload and normalizes the call time to whole seconds in UTC.
func (c *CallController) bindCall(ctx *gin.Context) (*callRequest, bool) {
	var req callRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return nil, false
	}
	req.CallAt = req.CallAt.UTC().Truncate(time.Second)
	if !req.CallAt.After(c.now()) {
		utils.Error(ctx, http.StatusBadRequest, 40031, "call must be in the future")
		return nil, false
	}
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40032, "unknown timezone")
			return nil, false
		}
	}
	req.Location = utils.SanitizeText(req.Location)
	req.Title = utils.SanitizeText(req.Title)
	return &req, true
}

// loadSquadAsCoach fetches the squad and checks the caller coaches it.
func (c *CallController) loadSquadAsCoach(ctx *gin.Context, userID string) (*models.Squad, bool) {
	var squad models.Squad
	err := c.db.WithContext(ctx.Request.Context()).Where("id = ?", ctx.Param("id")).First(&squad).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40430, "squad not found")
		return nil, false
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to load squad")
		return nil, false
	}
	if squad.CoachID != userID {
		utils.Error(ctx, http.StatusForbidden, 40330, "only the squad coach can change the call")
		return nil, false
	}
	return &squad, true
}

// SetSquadCall sets the next squad call and replaces its reminders.
func (c *CallController) SetSquadCall(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	req, ok := c.bindCall(ctx)
	if !ok {
		return
	}
	squad, ok := c.loadSquadAsCoach(ctx, userID)
	if !ok {
		return
	}

	squad.NextCallAt = &req.CallAt
	if req.Timezone != "" {
		squad.CallTimezone = req.Timezone
	}
	squad.CallLocation = req.Location
	squad.CallTitle = req.Title
	if err := c.db.WithContext(ctx.Request.Context()).Save(squad).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to save squad call")
		return
	}

	scheduled := c.reschedule(ctx, calljobs.CallSpec{
		Kind:        calljobs.KindSquad,
		SubjectID:   squad.ID,
		CallTime:    req.CallAt,
		SubjectName: squad.Name,
		Timezone:    squad.CallTimezone,
		Location:    squad.CallLocation,
		Title:       squad.CallTitle,
	})
	utils.Success(ctx, gin.H{"squad": squad, "jobs_scheduled": scheduled})
}

// ClearSquadCall removes the next squad call and its pending reminders.
func (c *CallController) ClearSquadCall(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	squad, ok := c.loadSquadAsCoach(ctx, userID)
	if !ok {
		return
	}

	squad.NextCallAt = nil
	if err := c.db.WithContext(ctx.Request.Context()).Model(squad).Update("next_call_at", nil).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to clear squad call")
		return
	}
	c.cancel(ctx, calljobs.KindSquad, squad.ID, "")
	utils.Success(ctx, gin.H{"squad": squad})
}

// loadRelationshipAsCoach fetches the member's coaching pair and checks the caller is the coach.
func (c *CallController) loadRelationshipAsCoach(ctx *gin.Context, userID string) (*models.CoachingRelationship, bool) {
	var rel models.CoachingRelationship
	err := c.db.WithContext(ctx.Request.Context()).Where("user_id = ?", ctx.Param("userId")).First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40431, "coaching relationship not found")
		return nil, false
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to load coaching relationship")
		return nil, false
	}
	if rel.CoachID != userID {
		utils.Error(ctx, http.StatusForbidden, 40331, "only the member's coach can change the call")
		return nil, false
	}
	return &rel, true
}

// SetCoachingCall sets the member's next 1:1 call and replaces its reminders.
func (c *CallController) SetCoachingCall(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	req, ok := c.bindCall(ctx)
	if !ok {
		return
	}
	rel, ok := c.loadRelationshipAsCoach(ctx, userID)
	if !ok {
		return
	}

	rel.NextCallAt = &req.CallAt
	if req.Timezone != "" {
		rel.CallTimezone = req.Timezone
	}
	rel.CallLocation = req.Location
	rel.CallTitle = req.Title
	if err := c.db.WithContext(ctx.Request.Context()).Save(rel).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to save coaching call")
		return
	}

	var member models.User
	if err := c.db.WithContext(ctx.Request.Context()).Where("id = ?", rel.UserID).First(&member).Error; err != nil {
		utils.Logger.Warn("coaching member lookup failed", zap.String("user_id", rel.UserID), zap.Error(err))
	}
	scheduled := c.reschedule(ctx, calljobs.CallSpec{
		Kind:        calljobs.KindCoaching,
		SubjectID:   rel.UserID,
		CoachID:     rel.CoachID,
		CallTime:    req.CallAt,
		SubjectName: strings.TrimSpace(member.FirstName + " " + member.LastName),
		CoachName:   rel.CoachName,
		Timezone:    rel.CallTimezone,
		Location:    rel.CallLocation,
		Title:       rel.CallTitle,
	})
	utils.Success(ctx, gin.H{"coaching": rel, "jobs_scheduled": scheduled})
}

// ClearCoachingCall removes the member's next 1:1 call and its pending reminders.
func (c *CallController) ClearCoachingCall(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	rel, ok := c.loadRelationshipAsCoach(ctx, userID)
	if !ok {
		return
	}

	rel.NextCallAt = nil
	err := c.db.WithContext(ctx.Request.Context()).Model(&models.CoachingRelationship{}).
		Where("user_id = ?", rel.UserID).Update("next_call_at", nil).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50035, "failed to clear coaching call")
		return
	}
	c.cancel(ctx, calljobs.KindCoaching, rel.UserID, rel.CoachID)
	utils.Success(ctx, gin.H{"coaching": rel})
}

// reschedule is best effort: the call edit is already saved and stale jobs are discarded by the sweep.
func (c *CallController) reschedule(ctx *gin.Context, spec calljobs.CallSpec) int {
	if c.scheduler == nil {
		return 0
	}
	n, err := c.scheduler.Reschedule(ctx.Request.Context(), spec)
	if err != nil {
		utils.Logger.Error("call job reschedule failed",
			zap.String("kind", string(spec.Kind)),
			zap.String("subject_id", spec.SubjectID),
			zap.Error(err))
		return 0
	}
	return n
}

func (c *CallController) cancel(ctx *gin.Context, kind calljobs.Kind, subjectID, coachID string) {
	if c.scheduler == nil {
		return
	}
	if err := c.scheduler.CancelCallJobs(ctx.Request.Context(), kind, subjectID, coachID); err != nil {
		utils.Logger.Error("call job cancel failed",
			zap.String("kind", string(kind)),
			zap.String("subject_id", subjectID),
			zap.Error(err))
	}
}
