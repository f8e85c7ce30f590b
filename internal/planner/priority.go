package planner

import "sort"

// TopicPriority is a topic's urgency for one student. Priority 0 means the
// topic is completed or waiting on prerequisites and will not be scheduled.
type TopicPriority struct {
	TopicID        string  `json:"topic_id"`
	TopicName      string  `json:"topic_name"`
	Priority       int     `json:"priority"`
	EstimatedHours float64 `json:"estimated_hours"`
	Status         Status  `json:"status"`
	Understanding  int     `json:"understanding"`
	Blocked        bool    `json:"blocked"`
}

// Score computes a topic's priority.
//
//	importance, then +2 in progress / +1 not started,
//	+(3-understanding) when started and understanding < 3,
//	0 when completed or when a required prerequisite is not completed.
func Score(importance int, status Status, understanding int, prerequisitesMet bool) int {
	if !prerequisitesMet {
		return 0
	}

	priority := importance
	switch status {
	case StatusCompleted:
		return 0
	case StatusInProgress:
		priority += 2
	default:
		priority++
	}

	if status != StatusNotStarted && status != "" && understanding < 3 {
		priority += 3 - understanding
	}
	return priority
}

// Prioritize scores every topic of the graph for the student whose progress
// is given, highest first. Ties keep ordinal order.
func (g *Graph) Prioritize(progress map[string]Progress) []TopicPriority {
	out := make([]TopicPriority, 0, len(g.topics))
	for _, t := range g.topics {
		rec := progress[t.ID]
		status := rec.Status
		if status == "" {
			status = StatusNotStarted
		}

		met := g.prerequisitesMet(t.ID, progress)
		out = append(out, TopicPriority{
			TopicID:        t.ID,
			TopicName:      t.Name,
			Priority:       Score(t.Importance, status, rec.Understanding, met),
			EstimatedHours: t.EstimatedHours,
			Status:         status,
			Understanding:  rec.Understanding,
			Blocked:        !met,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func (g *Graph) prerequisitesMet(id string, progress map[string]Progress) bool {
	for _, p := range g.prerequisites[id] {
		if progress[p].Status != StatusCompleted {
			return false
		}
	}
	return true
}
