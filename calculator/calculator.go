// Package calculator holds the body-composition and calorie planning formulas.
package calculator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput wraps every validation failure.
var ErrInvalidInput = errors.New("invalid calculator input")

const (
	// KcalPerKg is the energy content of one kilogram of body fat.
	KcalPerKg = 7700.0
	// DefaultMaxWeeklyLossKg caps the planned loss rate.
	DefaultMaxWeeklyLossKg = 1.0
	// MinDailyCalories is the lowest target the planner will suggest.
	MinDailyCalories = 1200
)

// Warnings attached to a clamped plan.
const (
	WarnWeeklyLossCapped = "Your target date needs more than a safe weekly loss; the plan is slowed to a safe rate and will take longer."
	WarnCalorieFloor     = "The calorie target was raised to the minimum safe intake; expect slower progress."
)

var validate = validator.New()

// Sex selects the Mifflin-St Jeor constant.
type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

// ActivityLevel selects the TDEE multiplier.
type ActivityLevel string

const (
	Sedentary        ActivityLevel = "sedentary"
	LightlyActive    ActivityLevel = "light"
	ModeratelyActive ActivityLevel = "moderate"
	Active           ActivityLevel = "active"
	VeryActive       ActivityLevel = "very_active"
)

var activityMultipliers = map[ActivityLevel]float64{
	Sedentary:        1.2,
	LightlyActive:    1.375,
	ModeratelyActive: 1.55,
	Active:           1.725,
	VeryActive:       1.9,
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			return invalid("%s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// BMI is weight over height in meters squared, to one decimal.
func BMI(weightKg, heightCm float64) (float64, error) {
	if weightKg <= 0 || heightCm <= 0 {
		return 0, invalid("weight and height must be positive")
	}
	m := heightCm / 100
	return round1(weightKg / (m * m)), nil
}

// BMICategory names the WHO band for a BMI value.
func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "underweight"
	case bmi < 25:
		return "normal"
	case bmi < 30:
		return "overweight"
	default:
		return "obese"
	}
}

// BMR is the Mifflin-St Jeor resting energy expenditure, rounded to whole kcal.
func BMR(sex Sex, age int, weightKg, heightCm float64) (int, error) {
	if age <= 0 || weightKg <= 0 || heightCm <= 0 {
		return 0, invalid("age, weight and height must be positive")
	}
	base := 10*weightKg + 6.25*heightCm - 5*float64(age)
	switch sex {
	case Male:
		base += 5
	case Female:
		base -= 161
	default:
		return 0, invalid("unknown sex %q", sex)
	}
	return int(math.Round(base)), nil
}

// TDEE scales BMR by the activity multiplier.
func TDEE(bmr int, level ActivityLevel) (int, error) {
	mult, ok := activityMultipliers[level]
	if !ok {
		return 0, invalid("unknown activity level %q", level)
	}
	if bmr <= 0 {
		return 0, invalid("bmr must be positive")
	}
	return int(math.Round(float64(bmr) * mult)), nil
}

// PlanInput describes a weight goal. MaxWeeklyLossKg of zero uses the default cap.
type PlanInput struct {
	CurrentWeightKg float64 `json:"current_weight_kg" validate:"gt=0"`
	GoalWeightKg    float64 `json:"goal_weight_kg" validate:"gt=0"`
	TDEE            int     `json:"tdee" validate:"gt=0"`
	DaysToTarget    int     `json:"days_to_target" validate:"gt=0"`
	MaxWeeklyLossKg float64 `json:"max_weekly_loss_kg" validate:"gte=0"`
}

// Plan is the daily intake that reaches the goal.
type Plan struct {
	TargetCalories int      `json:"target_calories"`
	DailyDeficit   int      `json:"daily_deficit"`
	WeeklyLossKg   float64  `json:"weekly_loss_kg"`
	IsHealthy      bool     `json:"is_healthy"`
	Warnings       []string `json:"warnings"`
}

// CalorieTarget spreads the energy gap evenly across the days left. The deficit is capped at
// the safe weekly loss and the target is never below MinDailyCalories; each clamp adds a warning
// and marks the plan unhealthy. A goal at or above the current weight plans for maintenance.
func CalorieTarget(in PlanInput) (Plan, error) {
	if err := check(in); err != nil {
		return Plan{}, err
	}
	maxWeekly := in.MaxWeeklyLossKg
	if maxWeekly == 0 {
		maxWeekly = DefaultMaxWeeklyLossKg
	}

	plan := Plan{IsHealthy: true, Warnings: []string{}}
	deficit := 0.0
	if toLose := in.CurrentWeightKg - in.GoalWeightKg; toLose > 0 {
		deficit = toLose * KcalPerKg / float64(in.DaysToTarget)
	}

	if maxDeficit := maxWeekly * KcalPerKg / 7; deficit > maxDeficit {
		deficit = maxDeficit
		plan.IsHealthy = false
		plan.Warnings = append(plan.Warnings, WarnWeeklyLossCapped)
	}

	target := float64(in.TDEE) - deficit
	if target < MinDailyCalories {
		target = MinDailyCalories
		deficit = math.Max(0, float64(in.TDEE)-MinDailyCalories)
		plan.IsHealthy = false
		plan.Warnings = append(plan.Warnings, WarnCalorieFloor)
	}

	plan.TargetCalories = int(math.Round(target))
	plan.DailyDeficit = int(math.Round(deficit))
	plan.WeeklyLossKg = round2(deficit * 7 / KcalPerKg)
	return plan, nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
