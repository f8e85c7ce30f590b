package planner

import (
	"math"
	"sort"
)

// hourEpsilon absorbs float drift when budgets and remaining hours hit zero.
const hourEpsilon = 1e-9

// Allocation is the time given to one topic on one day.
type Allocation struct {
	TopicID   string  `json:"topic_id"`
	TopicName string  `json:"topic_name"`
	Hours     float64 `json:"allocated_hours"`
	Priority  int     `json:"priority"`
}

// StudyDay is one calendar day of a schedule.
type StudyDay struct {
	Date    Date         `json:"date"`
	Weekday string       `json:"weekday"`
	Topics  []Allocation `json:"topics"`
}

// TotalHours sums the day's allocations.
func (d StudyDay) TotalHours() float64 {
	var total float64
	for _, a := range d.Topics {
		total += a.Hours
	}
	return total
}

// Calendar is the result of an allocation run.
type Calendar struct {
	Days []StudyDay `json:"days"`
	// Excluded lists eligible topics whose hours did not fit in the horizon.
	Excluded []Exclusion `json:"excluded,omitempty"`
}

// Entries flattens the calendar into schedule entries for one student and course.
func (c Calendar) Entries(studentID, courseID string) []ScheduleEntry {
	var entries []ScheduleEntry
	for _, day := range c.Days {
		for _, a := range day.Topics {
			entries = append(entries, ScheduleEntry{
				StudentID: studentID,
				CourseID:  courseID,
				TopicID:   a.TopicID,
				TopicName: a.TopicName,
				Date:      day.Date,
				Hours:     a.Hours,
				Priority:  a.Priority,
			})
		}
	}
	return entries
}

// Allocate spreads the eligible topics (priority > 0) over the study days of
// the horizon, highest priority first. The front topic keeps the day's budget
// until it is finished; in-progress topics are taken in half-sized
// increments of at least one hour. Topics still pending when the horizon ends
// are reported in Excluded.
func Allocate(priorities []TopicPriority, opts Options) (Calendar, error) {
	if err := opts.Validate(); err != nil {
		return Calendar{}, err
	}

	queue := newPendingQueue(priorities)
	cal := Calendar{Days: []StudyDay{}}

	for offset := 0; offset < HorizonDays && queue.Len() > 0; offset++ {
		date := opts.StartDate.AddDays(offset)
		if !opts.studiesOn(date.Weekday()) {
			continue
		}

		day := StudyDay{Date: date, Weekday: date.Weekday().String()}
		budget := opts.HoursPerDay

		for budget > hourEpsilon && queue.Len() > 0 {
			topic := queue.Front()
			hours := topic.increment(budget)
			if hours > hourEpsilon {
				day.Topics = append(day.Topics, Allocation{
					TopicID:   topic.TopicID,
					TopicName: topic.TopicName,
					Hours:     hours,
					Priority:  topic.Priority,
				})
			}

			budget -= hours
			topic.remaining -= hours
			if topic.remaining <= hourEpsilon {
				queue.PopFront()
			}
		}

		if len(day.Topics) > 0 {
			cal.Days = append(cal.Days, day)
		}
	}

	for _, t := range queue.items[queue.head:] {
		cal.Excluded = append(cal.Excluded, Exclusion{
			TopicID:        t.TopicID,
			Name:           t.TopicName,
			Reason:         ReasonHorizonExceeded,
			RemainingHours: t.remaining,
		})
	}
	return cal, nil
}

type pendingTopic struct {
	TopicPriority
	remaining float64
}

// increment is the time this pass gives the topic out of budget. An
// in-progress topic takes at least one hour per pass, even when less than an
// hour remains.
func (t *pendingTopic) increment(budget float64) float64 {
	if t.Status == StatusInProgress {
		return math.Min(budget, math.Max(1, t.remaining/2))
	}
	return math.Min(budget, t.remaining)
}

// pendingQueue is the priority-ordered work list of a single allocation run.
// It is never shared between runs.
type pendingQueue struct {
	items []*pendingTopic
	head  int
}

func newPendingQueue(priorities []TopicPriority) *pendingQueue {
	q := &pendingQueue{items: make([]*pendingTopic, 0, len(priorities))}
	for _, p := range priorities {
		if p.Priority <= 0 {
			continue
		}
		q.items = append(q.items, &pendingTopic{TopicPriority: p, remaining: p.EstimatedHours})
	}
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].Priority > q.items[j].Priority
	})
	return q
}

func (q *pendingQueue) Len() int {
	return len(q.items) - q.head
}

func (q *pendingQueue) Front() *pendingTopic {
	return q.items[q.head]
}

func (q *pendingQueue) PopFront() {
	q.items[q.head] = nil
	q.head++
}
