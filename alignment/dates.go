package alignment

import (
	"time"

	"github.com/cppla/slimcircle/utils"
)

func parseDate(date string) (time.Time, bool) {
	t, err := time.Parse(utils.DateLayout, date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsWeekend reports whether a YYYY-MM-DD date falls on Saturday or Sunday.
func IsWeekend(date string) bool {
	t, ok := parseDate(date)
	if !ok {
		return false
	}
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// PreviousWeekday walks back from date, skipping Saturday and Sunday.
// PreviousWeekday("2024-03-11") (a Monday) is "2024-03-08" (the Friday before).
func PreviousWeekday(date string) string {
	t, ok := parseDate(date)
	if !ok {
		return ""
	}
	for {
		t = t.AddDate(0, 0, -1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			return t.Format(utils.DateLayout)
		}
	}
}
