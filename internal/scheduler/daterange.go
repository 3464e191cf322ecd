package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateRange is a yearless, inclusive month/day window such as 12/1 to 12/25.
// Ranges that wrap the new year (start after end) are rejected by Validate.
type DateRange struct {
	StartMonth int
	StartDay   int
	EndMonth   int
	EndDay     int
}

// daysIn uses a leap year so 2/29 is accepted.
func daysIn(month int) int {
	return time.Date(2024, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func checkMonthDay(month, day int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("month %d out of range", month)
	}
	if day < 1 || day > daysIn(month) {
		return fmt.Errorf("day %d out of range for month %d", day, month)
	}
	return nil
}

// Validate checks both bounds and that the range does not wrap the year.
func (r DateRange) Validate() error {
	if err := checkMonthDay(r.StartMonth, r.StartDay); err != nil {
		return fmt.Errorf("range start: %w", err)
	}
	if err := checkMonthDay(r.EndMonth, r.EndDay); err != nil {
		return fmt.Errorf("range end: %w", err)
	}
	if r.StartMonth*100+r.StartDay > r.EndMonth*100+r.EndDay {
		return fmt.Errorf("range %s wraps the year end, which is not supported", r)
	}
	return nil
}

// Contains reports whether the calendar day of t, read in t's location,
// falls within the range. Both ends are inclusive for the whole day.
func (r DateRange) Contains(t time.Time) bool {
	md := int(t.Month())*100 + t.Day()
	return md >= r.StartMonth*100+r.StartDay && md <= r.EndMonth*100+r.EndDay
}

func (r DateRange) String() string {
	return fmt.Sprintf("%d/%d-%d/%d", r.StartMonth, r.StartDay, r.EndMonth, r.EndDay)
}

// parseMonthDay reads "M/D".
func parseMonthDay(s string) (int, int, error) {
	m, d, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, 0, fmt.Errorf("date %q: want month/day", s)
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return 0, 0, fmt.Errorf("date %q: %w", s, err)
	}
	day, err := strconv.Atoi(d)
	if err != nil {
		return 0, 0, fmt.Errorf("date %q: %w", s, err)
	}
	return month, day, nil
}

// ParseDateRange builds a range from two "M/D" strings.
func ParseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	var err error
	if r.StartMonth, r.StartDay, err = parseMonthDay(from); err != nil {
		return DateRange{}, err
	}
	if r.EndMonth, r.EndDay, err = parseMonthDay(to); err != nil {
		return DateRange{}, err
	}
	return r, r.Validate()
}
