package planner

import "math"

// Sequence is a topological order over a course's topics.
type Sequence struct {
	Order []string
	// Excluded lists topics that never became free of prerequisites because
	// they sit on, or depend on, a cycle of required edges.
	Excluded []Exclusion
}

// Sequence runs Kahn's algorithm. The queue is seeded in ordinal order so the
// result is deterministic; every required prerequisite precedes its dependents.
func (g *Graph) Sequence() Sequence {
	inDegree := make(map[string]int, len(g.inDegree))
	for id, n := range g.inDegree {
		inDegree[id] = n
	}

	queue := make([]string, 0, len(g.topics))
	for _, t := range g.topics {
		if inDegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	order := make([]string, 0, len(g.topics))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range g.dependents[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	seq := Sequence{Order: order}
	if len(order) == len(g.topics) {
		return seq
	}
	for _, t := range g.topics {
		if inDegree[t.ID] > 0 {
			seq.Excluded = append(seq.Excluded, Exclusion{
				TopicID: t.ID,
				Name:    t.Name,
				Reason:  ReasonCycleDetected,
			})
		}
	}
	return seq
}

// PathStep is one topic of the linear learning path.
type PathStep struct {
	TopicID        string  `json:"topic_id"`
	TopicName      string  `json:"topic_name"`
	Importance     int     `json:"importance_level"`
	EstimatedHours float64 `json:"estimated_hours"`
	Status         Status  `json:"status"`
	Understanding  int     `json:"understanding_level"`
	StartDate      Date    `json:"start_date"`
	EndDate        Date    `json:"end_date"`
}

// Path is the linear learning path with projected dates.
type Path struct {
	Steps    []PathStep  `json:"steps"`
	Excluded []Exclusion `json:"excluded,omitempty"`
}

// ProjectPath lays the sequence end to end on the calendar from start. Each
// topic lasts max(1, floor(hours/4)) days and the next one starts on the
// previous end date. Completed topics are left out.
func ProjectPath(g *Graph, seq Sequence, progress map[string]Progress, start Date) Path {
	path := Path{
		Steps:    make([]PathStep, 0, len(seq.Order)),
		Excluded: seq.Excluded,
	}

	current := start
	for _, id := range seq.Order {
		topic, ok := g.Topic(id)
		if !ok {
			continue
		}
		rec, hasRecord := progress[id]
		status := StatusNotStarted
		if hasRecord && rec.Status != "" {
			status = rec.Status
		}
		if status == StatusCompleted {
			continue
		}

		end := current.AddDays(pathDurationDays(topic.EstimatedHours))
		path.Steps = append(path.Steps, PathStep{
			TopicID:        topic.ID,
			TopicName:      topic.Name,
			Importance:     topic.Importance,
			EstimatedHours: topic.EstimatedHours,
			Status:         status,
			Understanding:  rec.Understanding,
			StartDate:      current,
			EndDate:        end,
		})
		current = end
	}

	return path
}

func pathDurationDays(hours float64) int {
	return max(1, int(math.Floor(hours/4)))
}
