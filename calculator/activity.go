package calculator

import (
	"math"
	"sort"
)

// MET values per activity, from the Compendium of Physical Activities.
var metTable = map[string]float64{
	"walking":           3.5,
	"brisk_walking":     4.3,
	"running":           9.8,
	"cycling":           7.5,
	"swimming":          6.0,
	"strength_training": 5.0,
	"yoga":              2.5,
	"hiit":              8.0,
	"dancing":           5.5,
	"hiking":            6.0,
}

// Activities lists the supported activity names in sorted order.
func Activities() []string {
	out := make([]string, 0, len(metTable))
	for k := range metTable {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ActivityInput is a single exercise session.
type ActivityInput struct {
	Activity string  `json:"activity" validate:"required"`
	WeightKg float64 `json:"weight_kg" validate:"gt=0"`
	Minutes  int     `json:"minutes" validate:"gt=0"`
}

// ActivityCalories estimates burned kcal as MET x weight x hours.
func ActivityCalories(in ActivityInput) (int, error) {
	if err := check(in); err != nil {
		return 0, err
	}
	met, ok := metTable[in.Activity]
	if !ok {
		return 0, invalid("unknown activity %q", in.Activity)
	}
	return int(math.Round(met * in.WeightKg * float64(in.Minutes) / 60)), nil
}
