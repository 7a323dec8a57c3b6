package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/slimcircle/alignment"
	"github.com/cppla/slimcircle/middleware"
	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/utils"
)

// AlignmentUpdater is the slice of the alignment engine the activity endpoints need.
type AlignmentUpdater interface {
	UpdateAlignmentForToday(ctx context.Context, userID string, updates models.AlignmentFlags) (*models.DailyAlignment, error)
	Today() string
}

func getUserID(ctx *gin.Context) (string, bool) {
	return middleware.UserID(ctx)
}

// requireUser writes the 401 envelope when the request carries no subject.
func requireUser(ctx *gin.Context) (string, bool) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return userID, ok
}

// ensureUser loads the caller's profile, creating it from the token claims on first sight.
func ensureUser(ctx *gin.Context, db *gorm.DB, userID string) (*models.User, error) {
	user := models.User{ID: userID}
	email := ctx.GetString(middleware.ContextEmailKey)
	err := db.WithContext(ctx.Request.Context()).
		Where(models.User{ID: userID}).
		Attrs(models.User{Email: email}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// refreshAlignment applies flag updates after an activity write. Failures are logged and the
// activity response is still returned without an alignment block.
func refreshAlignment(ctx *gin.Context, engine AlignmentUpdater, userID string, flags models.AlignmentFlags) *alignmentResponse {
	if engine == nil {
		return nil
	}
	rec, err := engine.UpdateAlignmentForToday(ctx.Request.Context(), userID, flags)
	if err != nil {
		utils.Logger.Warn("alignment update after activity failed",
			zap.String("user_id", userID),
			zap.String("path", ctx.FullPath()),
			zap.Error(err))
		return nil
	}
	return newAlignmentResponse(rec)
}

type alignmentResponse struct {
	Date            string                `json:"date"`
	Flags           models.AlignmentFlags `json:"flags"`
	AlignmentScore  int                   `json:"alignment_score"`
	FullyAligned    bool                  `json:"fully_aligned"`
	StreakOnThisDay int                   `json:"streak_on_this_day"`
}

func newAlignmentResponse(rec *models.DailyAlignment) *alignmentResponse {
	if rec == nil {
		return nil
	}
	return &alignmentResponse{
		Date:            rec.Date,
		Flags:           rec.Flags.Data(),
		AlignmentScore:  rec.AlignmentScore,
		FullyAligned:    rec.FullyAligned,
		StreakOnThisDay: rec.StreakOnThisDay,
	}
}

func behaviorKeys(behaviors []alignment.Behavior) []string {
	keys := make([]string, 0, len(behaviors))
	for _, b := range behaviors {
		keys = append(keys, b.Key)
	}
	return keys
}
