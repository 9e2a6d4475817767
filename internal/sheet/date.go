package sheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// spanishMonths maps the month names used in SNIIM date phrases.
var spanishMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

var datePhrase = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+(\p{L}+)\s+de\s+(\d{4})`)

// parseDatePhrase finds a "D de MONTH de YYYY" phrase in s.
func parseDatePhrase(s string) (time.Time, error) {
	m := datePhrase.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("no date phrase in %q", s)
	}
	month, ok := spanishMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized month name %q", m[2])
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, fmt.Errorf("invalid day %d for %s %d", day, month, year)
	}
	return t, nil
}

// findDate returns the first valid date phrase among the cells of a row.
// The last parse error is reported when no cell yields a date, so an
// unknown month name is surfaced rather than "no date phrase".
func findDate(cells []string) (time.Time, error) {
	err := fmt.Errorf("no date phrase in row")
	for _, c := range cells {
		if !strings.Contains(strings.ToLower(c), "de") {
			continue
		}
		t, perr := parseDatePhrase(c)
		if perr == nil {
			return t, nil
		}
		err = perr
	}
	return time.Time{}, err
}
