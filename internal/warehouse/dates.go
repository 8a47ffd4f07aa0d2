package warehouse

import (
	"time"

	"github.com/ignite/channel-warehouse/internal/domain"
)

// DateKey renders a calendar date as its YYYYMMDD integer.
func DateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// DateAttributes derives the calendar row for the day containing t.
// t is read in its own location; callers pass UTC calendar dates.
func DateAttributes(t time.Time) domain.DateDimension {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	_, week := day.ISOWeek()
	weekday := day.Weekday()

	return domain.DateDimension{
		DateKey:    DateKey(day),
		FullDate:   day,
		DayOfWeek:  int(weekday),
		DayName:    weekday.String(),
		WeekOfYear: week,
		Month:      int(m),
		MonthName:  m.String(),
		Quarter:    (int(m)-1)/3 + 1,
		Year:       y,
		IsWeekend:  weekday == time.Saturday || weekday == time.Sunday,
	}
}
