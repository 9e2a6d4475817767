package util

import "time"

// SNIIM publishes in Mexico City time; "yesterday" is computed there.
var mexicoCity = loadLocation("America/Mexico_City")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", -6*60*60)
	}
	return loc
}

// PreviousDay returns the calendar day before now in Mexico City, as
// midnight UTC.
func PreviousDay(now time.Time) time.Time {
	local := now.In(mexicoCity)
	return time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, time.UTC)
}

// PreviousMonth returns the first day of the month before now's month in
// Mexico City, as midnight UTC.
func PreviousMonth(now time.Time) time.Time {
	local := now.In(mexicoCity)
	return time.Date(local.Year(), local.Month()-1, 1, 0, 0, 0, 0, time.UTC)
}

// CurrentMonth returns the first day of now's month in Mexico City.
func CurrentMonth(now time.Time) time.Time {
	local := now.In(mexicoCity)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD flag value, or returns def when s is empty.
func ParseDay(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return time.Parse("2006-01-02", s)
}
