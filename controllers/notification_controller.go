package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/notifications"
	"github.com/cppla/slimcircle/utils"
)

const defaultNotificationPage = 20

// NotificationController serves the in-app inbox and email reminder preferences.
type NotificationController struct {
	db    *gorm.DB
	store *notifications.Store
}

// NewNotificationController creates a new NotificationController instance.
func NewNotificationController(db *gorm.DB, store *notifications.Store) *NotificationController {
	return &NotificationController{db: db, store: store}
}

// List returns the caller's newest notifications and the unread badge count.
func (n *NotificationController) List(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	unreadOnly := ctx.Query("unread") == "true"
	limit := defaultNotificationPage
	if raw := ctx.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			utils.Error(ctx, http.StatusBadRequest, 40050, "limit must be a positive integer")
			return
		}
		limit = v
	}

	items, err := n.store.ListForUser(ctx.Request.Context(), userID, unreadOnly, limit)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to load notifications")
		return
	}
	unread, err := n.store.UnreadCount(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to count notifications")
		return
	}
	utils.Success(ctx, gin.H{"items": items, "unread": unread})
}

// MarkRead flags one notification as read.
func (n *NotificationController) MarkRead(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	err := n.store.MarkRead(ctx.Request.Context(), userID, ctx.Param("id"))
	if errors.Is(err, notifications.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40450, "notification not found")
		return
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50052, "failed to update notification")
		return
	}
	utils.Success(ctx, gin.H{"id": ctx.Param("id"), "is_read": true})
}

// UpdatePreferences switches reminder email categories on or off. Omitted categories are unchanged.
func (n *NotificationController) UpdatePreferences(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req struct {
		SquadCall24h    *bool `json:"squad_call_24h"`
		SquadCall1h     *bool `json:"squad_call_1h"`
		CoachingCall24h *bool `json:"coaching_call_24h"`
		CoachingCall1h  *bool `json:"coaching_call_1h"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40051, "invalid request payload")
		return
	}

	user, err := ensureUser(ctx, n.db, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50053, "failed to load profile")
		return
	}

	optOuts := user.EmailOptOuts
	setOptOut(&optOuts.SquadCall24h, req.SquadCall24h)
	setOptOut(&optOuts.SquadCall1h, req.SquadCall1h)
	setOptOut(&optOuts.CoachingCall24h, req.CoachingCall24h)
	setOptOut(&optOuts.CoachingCall1h, req.CoachingCall1h)

	user.EmailOptOuts = optOuts
	if err := n.db.WithContext(ctx.Request.Context()).Save(user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50054, "failed to save preferences")
		return
	}
	utils.Success(ctx, preferencesResponse(user))
}

// setOptOut maps an "enabled" toggle onto the stored opt-out.
func setOptOut(dst *bool, enabled *bool) {
	if enabled != nil {
		*dst = !*enabled
	}
}

func preferencesResponse(u *models.User) gin.H {
	return gin.H{
		models.ReminderSquadCall24h:    u.WantsEmail(models.ReminderSquadCall24h),
		models.ReminderSquadCall1h:     u.WantsEmail(models.ReminderSquadCall1h),
		models.ReminderCoachingCall24h: u.WantsEmail(models.ReminderCoachingCall24h),
		models.ReminderCoachingCall1h:  u.WantsEmail(models.ReminderCoachingCall1h),
	}
}
