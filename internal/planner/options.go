package planner

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const (
	// HorizonDays is how many calendar days one allocation run may span.
	HorizonDays = 28
	// MaxHoursPerDay is the largest daily study budget accepted.
	MaxHoursPerDay = 12.0
)

// DefaultStudyDays is the weekday set used when a request names none.
var DefaultStudyDays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
}

// Options are the resolved inputs of one allocation run.
type Options struct {
	StudyDays   []time.Weekday
	HoursPerDay float64
	StartDate   Date
}

// Validate rejects options the allocator cannot run with.
func (o Options) Validate() error {
	if !(o.HoursPerDay > 0 && o.HoursPerDay <= MaxHoursPerDay) {
		return fmt.Errorf("%w, got %v", ErrInvalidHoursPerDay, o.HoursPerDay)
	}
	if len(o.StudyDays) == 0 {
		return ErrInvalidStudyDays
	}
	for _, d := range o.StudyDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
		}
	}
	if o.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidDate)
	}
	return nil
}

func (o Options) studiesOn(d time.Weekday) bool {
	return slices.Contains(o.StudyDays, d)
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "7": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "1": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "2": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "3": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday, "4": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "5": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "6": time.Saturday,
}

// ParseWeekday accepts full or short English names in any case, or the
// numbers 1 (Monday) through 7 (Sunday).
func ParseWeekday(s string) (time.Weekday, error) {
	key := cases.Fold().String(strings.TrimSpace(s))
	d, ok := weekdayNames[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
	}
	return d, nil
}

// ParseWeekdays parses a list of weekdays, dropping duplicates.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		d, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(days, d) {
			days = append(days, d)
		}
	}
	return days, nil
}
