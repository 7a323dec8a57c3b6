package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/slimcircle/middleware"
	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/utils"
)

// AuthController handles the caller's profile and session. Sign-in itself happens at the
// external identity provider; tokens arrive here already issued.
type AuthController struct {
	db     *gorm.DB
	engine AlignmentUpdater
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(db *gorm.DB, engine AlignmentUpdater) *AuthController {
	return &AuthController{db: db, engine: engine}
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(72 * time.Hour)
	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	utils.BlacklistToken(ctx.Request.Context(), token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's profile, creating it on first visit.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	user, err := ensureUser(ctx, a.db, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to load profile")
		return
	}

	utils.Success(ctx, profileResponse(*user))
}

// UpdateProfile allows the authenticated user to update names, timezone and goal.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req struct {
		FirstName      *string `json:"first_name" binding:"omitempty,max=64"`
		LastName       *string `json:"last_name" binding:"omitempty,max=64"`
		Timezone       *string `json:"timezone" binding:"omitempty,max=64"`
		Goal           *string `json:"goal" binding:"omitempty,max=512"`
		GoalStatus     *string `json:"goal_status" binding:"omitempty,oneof=active completed archived"`
		GoalTargetDate *string `json:"goal_target_date"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid request payload")
		return
	}

	user, err := ensureUser(ctx, a.db, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to load profile")
		return
	}

	if req.FirstName != nil {
		user.FirstName = utils.SanitizeText(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = utils.SanitizeText(*req.LastName)
	}
	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if _, err := time.LoadLocation(tz); tz == "" || err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40061, "unknown timezone")
			return
		}
		user.Timezone = tz
	}
	goalChanged := false
	if req.Goal != nil {
		user.Goal = utils.SanitizeText(*req.Goal)
		if user.Goal != "" && user.GoalStatus == "" {
			user.GoalStatus = models.GoalStatusActive
		}
		goalChanged = true
	}
	if req.GoalStatus != nil {
		user.GoalStatus = *req.GoalStatus
		goalChanged = true
	}
	if req.GoalTargetDate != nil {
		if raw := strings.TrimSpace(*req.GoalTargetDate); raw == "" {
			user.GoalTargetDate = nil
		} else {
			target, err := parseTargetDate(raw)
			if err != nil {
				utils.Error(ctx, http.StatusBadRequest, 40062, "goal_target_date must be YYYY-MM-DD or RFC3339")
				return
			}
			user.GoalTargetDate = &target
		}
	}

	if err := a.db.WithContext(ctx.Request.Context()).Save(user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to update profile")
		return
	}

	resp := profileResponse(*user)
	if goalChanged {
		resp["alignment"] = refreshAlignment(ctx, a.engine, userID, nil)
	}
	utils.Success(ctx, resp)
}

func profileResponse(user models.User) gin.H {
	return gin.H{
		"id":               user.ID,
		"email":            user.Email,
		"first_name":       user.FirstName,
		"last_name":        user.LastName,
		"timezone":         user.Timezone,
		"squad_id":         user.SquadID,
		"goal":             user.Goal,
		"goal_status":      user.GoalStatus,
		"goal_target_date": user.GoalTargetDate,
		"has_active_goal":  user.HasActiveGoal(),
		"created_at":       user.CreatedAt,
	}
}
