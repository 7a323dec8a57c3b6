package utils

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used for per-day records.
const DateLayout = "2006-01-02"

// LoadLocation resolves an IANA zone name, falling back to UTC for empty or unknown names.
func LoadLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalDate renders t as YYYY-MM-DD in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// FormatClock renders the time of day with zone abbreviation, e.g. "7:00 PM EST".
func FormatClock(t time.Time, tz string) string {
	return t.In(LoadLocation(tz)).Format("3:04 PM MST")
}

// FormatCallTime renders weekday, date and clock, e.g. "Tuesday, Jan 6 at 7:00 PM EST".
func FormatCallTime(t time.Time, tz string) string {
	return t.In(LoadLocation(tz)).Format("Monday, Jan 2 at 3:04 PM MST")
}

// DualTimeString shows the call time in the call's zone and, when it differs, in the viewer's zone.
func DualTimeString(t time.Time, callTZ, viewerTZ string) string {
	callText := FormatClock(t, callTZ)
	if viewerTZ == "" || sameOffset(t, callTZ, viewerTZ) {
		return callText
	}
	return callText + " (" + FormatClock(t, viewerTZ) + " your time)"
}

func sameOffset(t time.Time, a, b string) bool {
	an, ao := t.In(LoadLocation(a)).Zone()
	bn, bo := t.In(LoadLocation(b)).Zone()
	return an == bn && ao == bo
}
