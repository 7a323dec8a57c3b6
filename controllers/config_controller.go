package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/slimcircle/alignment"
	"github.com/cppla/slimcircle/calculator"
	"github.com/cppla/slimcircle/calljobs"
	"github.com/cppla/slimcircle/config"
	"github.com/cppla/slimcircle/utils"
)

var activityLevels = []calculator.ActivityLevel{
	calculator.Sedentary,
	calculator.LightlyActive,
	calculator.ModeratelyActive,
	calculator.Active,
	calculator.VeryActive,
}

// ConfigController serves the static choices the client renders forms from.
type ConfigController struct {
	behaviors []alignment.Behavior
}

func NewConfigController(behaviors []alignment.Behavior) *ConfigController {
	return &ConfigController{behaviors: behaviors}
}

// GetConfig returns tracked behaviors, calculator choices and reminder windows.
func (c *ConfigController) GetConfig(ctx *gin.Context) {
	cfg := config.Get()
	windows := make([]string, 0, len(calljobs.JobTypes()))
	for _, t := range calljobs.JobTypes() {
		windows = append(windows, string(t))
	}
	utils.Success(ctx, gin.H{
		"alignment": gin.H{
			"behaviors": behaviorKeys(c.behaviors),
			"timezone":  cfg.AlignmentTimezone,
		},
		"calculator": gin.H{
			"activities":         calculator.Activities(),
			"activity_levels":    activityLevels,
			"min_daily_calories": calculator.MinDailyCalories,
			"max_weekly_loss_kg": calculator.DefaultMaxWeeklyLossKg,
		},
		"reminders": windows,
	})
}
