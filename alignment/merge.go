package alignment

import (
	"math"

	"github.com/cppla/slimcircle/models"
)

// MergeFlags joins stored, requested and freshly probed values per behavior.
//
// Sticky behaviors take the OR of all three, so a stored true can never be lost.
// Non-sticky behaviors take the probed value when one exists, then the requested value,
// then the stored value. Keys outside the behavior set are dropped.
func MergeFlags(behaviors []Behavior, existing, incoming, probed models.AlignmentFlags) models.AlignmentFlags {
	merged := make(models.AlignmentFlags, len(behaviors))
	for _, b := range behaviors {
		if b.Sticky {
			merged[b.Key] = existing[b.Key] || incoming[b.Key] || probed[b.Key]
			continue
		}
		if v, ok := probed[b.Key]; ok {
			merged[b.Key] = v
		} else if v, ok := incoming[b.Key]; ok {
			merged[b.Key] = v
		} else {
			merged[b.Key] = existing[b.Key]
		}
	}
	return merged
}

// Score is the share of true behaviors as a whole percentage.
// With four behaviors every flag is worth exactly 25.
func Score(behaviors []Behavior, flags models.AlignmentFlags) int {
	if len(behaviors) == 0 {
		return 0
	}
	count := 0
	for _, b := range behaviors {
		if flags[b.Key] {
			count++
		}
	}
	return int(math.Round(100 * float64(count) / float64(len(behaviors))))
}

func sameFlags(behaviors []Behavior, a, b models.AlignmentFlags) bool {
	for _, beh := range behaviors {
		if a[beh.Key] != b[beh.Key] {
			return false
		}
	}
	return len(a) == len(b)
}
