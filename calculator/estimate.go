package calculator

import "time"

// ProfileInput is everything the planner needs about a member and their goal.
type ProfileInput struct {
	Sex             Sex           `json:"sex" validate:"oneof=male female"`
	Age             int           `json:"age" validate:"gt=0,lt=120"`
	WeightKg        float64       `json:"weight_kg" validate:"gt=0"`
	HeightCm        float64       `json:"height_cm" validate:"gt=0"`
	Activity        ActivityLevel `json:"activity_level" validate:"required"`
	GoalWeightKg    float64       `json:"goal_weight_kg" validate:"gt=0"`
	TargetDate      time.Time     `json:"target_date" validate:"required"`
	MaxWeeklyLossKg float64       `json:"max_weekly_loss_kg" validate:"gte=0"`
}

// Estimate is the full calculator output.
type Estimate struct {
	BMI          float64 `json:"bmi"`
	BMICategory  string  `json:"bmi_category"`
	BMR          int     `json:"bmr"`
	TDEE         int     `json:"tdee"`
	DaysToTarget int     `json:"days_to_target"`
	Plan         Plan    `json:"plan"`
}

// DaysUntil counts whole calendar days from now to target, at least one.
func DaysUntil(now, target time.Time) int {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	days := int(to.Sub(from).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// Compute runs BMI, BMR, TDEE and the calorie plan for a profile as of now.
func Compute(in ProfileInput, now time.Time) (*Estimate, error) {
	if err := check(in); err != nil {
		return nil, err
	}
	bmi, err := BMI(in.WeightKg, in.HeightCm)
	if err != nil {
		return nil, err
	}
	bmr, err := BMR(in.Sex, in.Age, in.WeightKg, in.HeightCm)
	if err != nil {
		return nil, err
	}
	tdee, err := TDEE(bmr, in.Activity)
	if err != nil {
		return nil, err
	}
	days := DaysUntil(now, in.TargetDate)
	plan, err := CalorieTarget(PlanInput{
		CurrentWeightKg: in.WeightKg,
		GoalWeightKg:    in.GoalWeightKg,
		TDEE:            tdee,
		DaysToTarget:    days,
		MaxWeeklyLossKg: in.MaxWeeklyLossKg,
	})
	if err != nil {
		return nil, err
	}
	return &Estimate{
		BMI:          bmi,
		BMICategory:  BMICategory(bmi),
		BMR:          bmr,
		TDEE:         tdee,
		DaysToTarget: days,
		Plan:         plan,
	}, nil
}
