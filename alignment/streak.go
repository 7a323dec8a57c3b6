package alignment

// NextStreak computes the streak after the user becomes fully aligned on today.
//
// Weekends never touch the streak. A last aligned date equal to the previous weekday
// extends the streak by one, so Friday carries into Monday. Today itself leaves the
// streak unchanged. Anything older starts over at 1.
// The second result is false when the summary must not be written.
func NextStreak(current int, lastAlignedDate, today string) (int, bool) {
	if IsWeekend(today) {
		return current, false
	}
	switch lastAlignedDate {
	case PreviousWeekday(today):
		return current + 1, true
	case today:
		return current, true
	default:
		return 1, true
	}
}

// EffectiveStreak is the streak to display on today. A streak whose last aligned day is
// older than the previous weekday is already broken and shows as zero; on Saturday and
// Sunday the previous weekday is Friday.
func EffectiveStreak(current int, lastAlignedDate, today string) int {
	if lastAlignedDate == "" {
		return 0
	}
	if lastAlignedDate == today || lastAlignedDate == PreviousWeekday(today) {
		return current
	}
	return 0
}
