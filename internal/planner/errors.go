package planner

import "errors"

var (
	ErrInvalidHoursPerDay = errors.New("hours per day must be in (0, 12]")
	ErrInvalidStudyDays   = errors.New("at least one study day is required")
	ErrInvalidWeekday     = errors.New("unknown weekday")
	ErrInvalidDate        = errors.New("invalid date, want YYYY-MM-DD")
	ErrInvalidProgress    = errors.New("invalid progress record")
	ErrInvalidDependency  = errors.New("invalid dependency")
	ErrNotFound           = errors.New("not found")
)
