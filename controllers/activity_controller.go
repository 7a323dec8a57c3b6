package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/slimcircle/alignment"
	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/utils"
)

// ActivityController records the daily actions that feed alignment.
type ActivityController struct {
	db     *gorm.DB
	engine AlignmentUpdater
}

// NewActivityController creates a new ActivityController instance.
func NewActivityController(db *gorm.DB, engine AlignmentUpdater) *ActivityController {
	return &ActivityController{db: db, engine: engine}
}

// CreateCheckIn stores a completed check-in; repeating the same type on a day updates it.
func (a *ActivityController) CreateCheckIn(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req struct {
		Type string `json:"type" binding:"required,oneof=morning evening weekly"`
		Mood string `json:"mood" binding:"max=32"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	checkIn := models.CheckIn{
		UserID:      userID,
		Date:        a.engine.Today(),
		Type:        req.Type,
		Mood:        utils.SanitizeText(req.Mood),
		CompletedAt: time.Now(),
	}
	err := a.db.WithContext(ctx.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"mood", "completed_at"}),
	}).Create(&checkIn).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to record check-in")
		return
	}

	var flags models.AlignmentFlags
	if req.Type == models.CheckInMorning {
		flags = models.AlignmentFlags{alignment.MorningCheckIn: true}
	}
	utils.Success(ctx, gin.H{
		"check_in":  checkIn,
		"alignment": refreshAlignment(ctx, a.engine, userID, flags),
	})
}

// CreateTask adds a task to today's focus list or the backlog.
func (a *ActivityController) CreateTask(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req struct {
		Title    string `json:"title" binding:"required,max=255"`
		ListType string `json:"list_type" binding:"omitempty,oneof=focus backlog"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid request payload")
		return
	}
	title := utils.SanitizeText(req.Title)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40022, "title cannot be empty")
		return
	}
	listType := strings.TrimSpace(req.ListType)
	if listType == "" {
		listType = models.TaskListFocus
	}

	task := models.Task{UserID: userID, Date: a.engine.Today(), Title: title, ListType: listType}
	if err := a.db.WithContext(ctx.Request.Context()).Create(&task).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to create task")
		return
	}

	var flags models.AlignmentFlags
	if listType == models.TaskListFocus {
		flags = models.AlignmentFlags{alignment.TasksPlanned: true}
	}
	utils.Success(ctx, gin.H{
		"task":      task,
		"alignment": refreshAlignment(ctx, a.engine, userID, flags),
	})
}

// UpsertTodayEntry saves today's food and exercise log. Omitted fields keep their value.
func (a *ActivityController) UpsertTodayEntry(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req struct {
		MealsLogged    *int     `json:"meals_logged" binding:"omitempty,min=0,max=20"`
		WorkoutMinutes *int     `json:"workout_minutes" binding:"omitempty,min=0,max=1440"`
		WeightKg       *float64 `json:"weight_kg" binding:"omitempty,gt=0,lt=700"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid request payload")
		return
	}

	today := a.engine.Today()
	var entry models.DailyEntry
	err := a.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(models.DailyEntry{UserID: userID, Date: today}).FirstOrInit(&entry).Error; err != nil {
			return err
		}
		if req.MealsLogged != nil {
			entry.MealsLogged = *req.MealsLogged
		}
		if req.WorkoutMinutes != nil {
			entry.WorkoutMinutes = *req.WorkoutMinutes
		}
		if req.WeightKg != nil {
			entry.WeightKg = req.WeightKg
		}
		return tx.Save(&entry).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to save entry")
		return
	}

	flags := models.AlignmentFlags{}
	if entry.MealsLogged > 0 {
		flags[alignment.MealsLogged] = true
	}
	if entry.WorkoutMinutes > 0 {
		flags[alignment.WorkoutLogged] = true
	}
	utils.Success(ctx, gin.H{
		"entry":     entry,
		"alignment": refreshAlignment(ctx, a.engine, userID, flags),
	})
}

// RecordCircleInteraction counts a squad chat message for today.
func (a *ActivityController) RecordCircleInteraction(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	row := models.CircleInteraction{UserID: userID, Date: a.engine.Today(), Count: 1}
	err := a.db.WithContext(ctx.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": time.Now()}),
	}).Create(&row).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to record interaction")
		return
	}

	utils.Success(ctx, gin.H{
		"alignment": refreshAlignment(ctx, a.engine, userID, models.AlignmentFlags{alignment.CircleInteraction: true}),
	})
}
