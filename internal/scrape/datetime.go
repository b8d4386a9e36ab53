package scrape

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// The site publishes absolute timestamps in the title attribute of the time
// span, written out in Dutch: "zondag 6 april 2025 14:55:01".

var dutchWeekdays = map[string]bool{
	"maandag":   true,
	"dinsdag":   true,
	"woensdag":  true,
	"donderdag": true,
	"vrijdag":   true,
	"zaterdag":  true,
	"zondag":    true,
}

var dutchMonths = map[string]time.Month{
	"januari":   time.January,
	"februari":  time.February,
	"maart":     time.March,
	"april":     time.April,
	"mei":       time.May,
	"juni":      time.June,
	"juli":      time.July,
	"augustus":  time.August,
	"september": time.September,
	"oktober":   time.October,
	"november":  time.November,
	"december":  time.December,
}

var (
	siteLocOnce sync.Once
	siteLoc     *time.Location
)

// siteLocation is the timezone the site renders timestamps in.
func siteLocation() *time.Location {
	siteLocOnce.Do(func() {
		loc, err := time.LoadLocation("Europe/Amsterdam")
		if err != nil {
			loc = time.Local
		}
		siteLoc = loc
	})
	return siteLoc
}

// ParseDutchTime parses a Dutch long-form timestamp such as
// "zondag 6 april 2025 14:55:01" into a time in the site's timezone.
func ParseDutchTime(s string) (time.Time, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) != 5 {
		return time.Time{}, fmt.Errorf("malformed timestamp %q", s)
	}

	if !dutchWeekdays[fields[0]] {
		return time.Time{}, fmt.Errorf("unknown weekday %q in timestamp %q", fields[0], s)
	}

	day, err := strconv.Atoi(fields[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad day in timestamp %q", s)
	}

	month, ok := dutchMonths[fields[2]]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q in timestamp %q", fields[2], s)
	}

	year, err := strconv.Atoi(fields[3])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad year in timestamp %q", s)
	}

	clock, err := time.Parse("15:04:05", fields[4])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad clock in timestamp %q", s)
	}

	t := time.Date(year, month, day, clock.Hour(), clock.Minute(), clock.Second(), 0, siteLocation())
	// time.Date normalizes out-of-range days, so round-trip to catch them.
	if t.Day() != day || t.Month() != month || t.Year() != year {
		return time.Time{}, fmt.Errorf("impossible date in timestamp %q", s)
	}
	return t, nil
}
