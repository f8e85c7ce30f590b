package planner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/planner"
)

const testCourse = "CS101"

// topic builds a course topic. Position follows call order through pos.
func topic(id string, pos, importance int, hours float64, required ...string) curriculum.Topic {
	return curriculum.Topic{
		ID:             id,
		Name:           "Topic " + id,
		CourseID:       testCourse,
		Chapter:        1,
		Position:       pos,
		Importance:     importance,
		EstimatedHours: hours,
		Prerequisites:  curriculum.Prerequisites{Required: required},
	}
}

func requires(topicID, prereqID string) curriculum.Dependency {
	return curriculum.Dependency{TopicID: topicID, PrerequisiteID: prereqID, Kind: curriculum.KindRequired}
}

func edgesOf(topics ...curriculum.Topic) []curriculum.Dependency {
	var edges []curriculum.Dependency
	for _, t := range topics {
		edges = append(edges, t.Dependencies()...)
	}
	return edges
}

func progressOf(records ...planner.Progress) map[string]planner.Progress {
	out := make(map[string]planner.Progress, len(records))
	for _, r := range records {
		out[r.TopicID] = r
	}
	return out
}

func status(topicID string, s planner.Status, understanding int) planner.Progress {
	return planner.Progress{StudentID: "s1", TopicID: topicID, Status: s, Understanding: understanding}
}

func mustDate(t *testing.T, s string) planner.Date {
	t.Helper()
	d, err := planner.ParseDate(s)
	require.NoError(t, err)
	return d
}

var everyDay = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}
