// Package planner builds prerequisite-aware study plans: a topological
// learning path with projected dates, a per-student priority ranking, and a
// time-boxed day-by-day allocation over a fixed horizon.
package planner

import (
	"fmt"
	"time"
)

// Status is a student's completion state for one topic.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Progress is a student's record for one topic. Understanding 0 means unknown.
type Progress struct {
	StudentID      string    `json:"student_id"`
	TopicID        string    `json:"topic_id"`
	Status         Status    `json:"status"`
	Understanding  int       `json:"understanding_level"`
	TimeSpentHours float64   `json:"time_spent_hours"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks the record's fields.
func (p Progress) Validate() error {
	if p.StudentID == "" || p.TopicID == "" {
		return fmt.Errorf("%w: student_id and topic_id are required", ErrInvalidProgress)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidProgress, p.Status)
	}
	if p.Understanding < 0 || p.Understanding > 5 {
		return fmt.Errorf("%w: understanding_level must be 0-5, got %d", ErrInvalidProgress, p.Understanding)
	}
	if p.TimeSpentHours < 0 {
		return fmt.Errorf("%w: time_spent_hours must be non-negative", ErrInvalidProgress)
	}
	return nil
}

// ExclusionReason explains why a topic is missing from a plan.
type ExclusionReason string

const (
	ReasonCycleDetected   ExclusionReason = "cycle-detected"
	ReasonHorizonExceeded ExclusionReason = "horizon-exceeded"
)

// Exclusion names a topic that a plan could not place.
type Exclusion struct {
	TopicID        string          `json:"topic_id"`
	Name           string          `json:"topic_name"`
	Reason         ExclusionReason `json:"reason"`
	RemainingHours float64         `json:"remaining_hours,omitempty"`
}

// ScheduleEntry is one committed allocation of study time.
type ScheduleEntry struct {
	ID           string    `json:"id"`
	GenerationID string    `json:"generation_id"`
	StudentID    string    `json:"student_id"`
	CourseID     string    `json:"course_id"`
	TopicID      string    `json:"topic_id"`
	TopicName    string    `json:"topic_name"`
	Date         Date      `json:"date"`
	Hours        float64   `json:"hours"`
	Priority     int       `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
}
