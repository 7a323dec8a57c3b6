package alignment

import (
	"context"
	"fmt"
)

// Behavior keys understood by Behaviors.
const (
	MorningCheckIn    = "morning_checkin"
	TasksPlanned      = "tasks_planned"
	CircleInteraction = "circle_interaction"
	ActiveGoal        = "active_goal"
	MealsLogged       = "meals_logged"
	WorkoutLogged     = "workout_logged"
)

// DefaultBehaviors is the behavior set used when the deployment configures none.
var DefaultBehaviors = []string{MorningCheckIn, TasksPlanned, CircleInteraction, ActiveGoal}

// Source reports the current truth of a behavior for a user on a date.
type Source func(ctx context.Context, userID, date string) (bool, error)

// Behavior is one tracked daily habit.
// Sticky behaviors never revert to false for a date once observed true.
type Behavior struct {
	Key    string
	Sticky bool
	Source Source
}

// Sources answers each behavior from its authoritative records.
type Sources interface {
	MorningCheckInDone(ctx context.Context, userID, date string) (bool, error)
	FocusTasksSet(ctx context.Context, userID, date string) (bool, error)
	CircleInteracted(ctx context.Context, userID, date string) (bool, error)
	HasActiveGoal(ctx context.Context, userID, date string) (bool, error)
	MealsLogged(ctx context.Context, userID, date string) (bool, error)
	WorkoutLogged(ctx context.Context, userID, date string) (bool, error)
}

// Behaviors resolves configured keys into behaviors wired to src.
func Behaviors(keys []string, src Sources) ([]Behavior, error) {
	if len(keys) == 0 {
		keys = DefaultBehaviors
	}
	seen := make(map[string]bool, len(keys))
	out := make([]Behavior, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			return nil, fmt.Errorf("duplicate alignment behavior %q", key)
		}
		seen[key] = true

		b := Behavior{Key: key, Sticky: true}
		switch key {
		case MorningCheckIn:
			b.Source = src.MorningCheckInDone
		case TasksPlanned:
			b.Source = src.FocusTasksSet
		case CircleInteraction:
			b.Source = src.CircleInteracted
		case ActiveGoal:
			// goals can be completed or archived mid-day, so this one follows its source both ways
			b.Sticky = false
			b.Source = src.HasActiveGoal
		case MealsLogged:
			b.Source = src.MealsLogged
		case WorkoutLogged:
			b.Source = src.WorkoutLogged
		default:
			return nil, fmt.Errorf("unknown alignment behavior %q", key)
		}
		out = append(out, b)
	}
	return out, nil
}
