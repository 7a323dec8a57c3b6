package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/slimcircle/calculator"
	"github.com/cppla/slimcircle/utils"
)

// CalculatorController exposes the calorie planner.
type CalculatorController struct {
	now func() time.Time
}

// NewCalculatorController creates a new CalculatorController instance.
func NewCalculatorController() *CalculatorController {
	return &CalculatorController{now: time.Now}
}

// Plan returns BMI, BMR, TDEE and the daily calorie target for a goal date.
func (c *CalculatorController) Plan(ctx *gin.Context) {
	var req struct {
		Sex             string  `json:"sex"`
		Age             int     `json:"age"`
		WeightKg        float64 `json:"weight_kg"`
		HeightCm        float64 `json:"height_cm"`
		ActivityLevel   string  `json:"activity_level"`
		GoalWeightKg    float64 `json:"goal_weight_kg"`
		TargetDate      string  `json:"target_date" binding:"required"`
		MaxWeeklyLossKg float64 `json:"max_weekly_loss_kg"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}
	target, err := parseTargetDate(req.TargetDate)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40041, "target_date must be YYYY-MM-DD or RFC3339")
		return
	}

	estimate, err := calculator.Compute(calculator.ProfileInput{
		Sex:             calculator.Sex(strings.ToLower(req.Sex)),
		Age:             req.Age,
		WeightKg:        req.WeightKg,
		HeightCm:        req.HeightCm,
		Activity:        calculator.ActivityLevel(strings.ToLower(req.ActivityLevel)),
		GoalWeightKg:    req.GoalWeightKg,
		TargetDate:      target,
		MaxWeeklyLossKg: req.MaxWeeklyLossKg,
	}, c.now())
	if err != nil {
		calculatorError(ctx, err)
		return
	}
	utils.Success(ctx, estimate)
}

// Activity estimates calories burned by one exercise session.
func (c *CalculatorController) Activity(ctx *gin.Context) {
	var req calculator.ActivityInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "invalid request payload")
		return
	}
	kcal, err := calculator.ActivityCalories(req)
	if err != nil {
		calculatorError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"activity": req.Activity, "minutes": req.Minutes, "calories": kcal})
}

func calculatorError(ctx *gin.Context, err error) {
	if errors.Is(err, calculator.ErrInvalidInput) {
		utils.Error(ctx, http.StatusBadRequest, 40043, err.Error())
		return
	}
	utils.Error(ctx, http.StatusInternalServerError, 50040, "calculation failed")
}

func parseTargetDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
