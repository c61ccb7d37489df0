package eligibility

import (
	"time"

	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

// WindowStart returns the start of the calendar window containing now,
// aligned in loc (UTC when nil). Weeks start on Monday.
func WindowStart(per enums.FrequencyPeriod, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	switch per {
	case enums.PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case enums.PeriodWeek:
		offset := (int(local.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// WindowEnd returns the first instant after the window that contains now.
func WindowEnd(per enums.FrequencyPeriod, now time.Time, loc *time.Location) time.Time {
	start := WindowStart(per, now, loc)
	switch per {
	case enums.PeriodMonth:
		return start.AddDate(0, 1, 0)
	case enums.PeriodWeek:
		return start.AddDate(0, 0, 7)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// WindowKey is a stable label for the window containing now, used to bucket
// impression counters.
func WindowKey(per enums.FrequencyPeriod, now time.Time, loc *time.Location) string {
	start := WindowStart(per, now, loc)
	switch per {
	case enums.PeriodMonth:
		return "m" + start.Format("2006-01")
	case enums.PeriodWeek:
		return "w" + start.Format("2006-01-02")
	default:
		return "d" + start.Format("2006-01-02")
	}
}
