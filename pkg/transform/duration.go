package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/msc-platform/ivr/pkg/common/models"
)

// CalendarDiff returns whole years, months and days from start to end.
// Month steps clamp to the last day of shorter months, so Jan 31 to Mar 1
// is one month and one day.
func CalendarDiff(start, end time.Time) (years, months, days int) {
	start = dateOnly(start)
	end = dateOnly(end)
	if end.Before(start) {
		return 0, 0, 0
	}

	total := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if addMonths(start, total).After(end) {
		total--
	}
	days = TotalDays(addMonths(start, total), end)
	return total / 12, total % 12, days
}

func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := t.Day()
	if last := daysInMonth(first); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// TotalDays counts calendar days between the two dates.
func TotalDays(start, end time.Time) int {
	d := dateOnly(end).Sub(dateOnly(start))
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FormatDuration renders the wound duration as "1 year, 6 months, 2 weeks, 3 days".
// With a wound_start_date the components come from the calendar; otherwise the
// wound_duration_{years,months,weeks,days} facts are taken as components.
// Zero components are left out.
func (t *Transformer) FormatDuration(facts models.FactMap) string {
	var years, months, weeks, days int

	if start, err := ParseDate(facts["wound_start_date"]); err == nil {
		var rem int
		years, months, rem = CalendarDiff(start, t.now())
		weeks, days = rem/7, rem%7
	} else {
		years = facts.Int("wound_duration_years")
		months = facts.Int("wound_duration_months")
		weeks = facts.Int("wound_duration_weeks")
		days = facts.Int("wound_duration_days")
	}

	parts := make([]string, 0, 4)
	for _, c := range []struct {
		n    int
		unit string
	}{{years, "year"}, {months, "month"}, {weeks, "week"}, {days, "day"}} {
		if c.n <= 0 {
			continue
		}
		if c.n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", c.unit))
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", c.n, c.unit))
		}
	}
	return strings.Join(parts, ", ")
}
