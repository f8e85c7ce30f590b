package planner

import (
	"github.com/p-n-ai/pai-planner/internal/curriculum"
)

// Graph is the required-prerequisite graph of a single course.
type Graph struct {
	topics        []curriculum.Topic
	index         map[string]int
	dependents    map[string][]string
	prerequisites map[string][]string
	inDegree      map[string]int
}

// BuildGraph assembles the graph from a course's topics and edges. Only
// required edges between two topics of the set are kept; anything else is
// ignored, so an unknown prerequisite never blocks. Cycles are not rejected.
func BuildGraph(topics []curriculum.Topic, edges []curriculum.Dependency) *Graph {
	sorted := append([]curriculum.Topic(nil), topics...)
	curriculum.SortTopics(sorted)

	g := &Graph{
		topics:        sorted,
		index:         make(map[string]int, len(sorted)),
		dependents:    make(map[string][]string),
		prerequisites: make(map[string][]string),
		inDegree:      make(map[string]int, len(sorted)),
	}
	for i, t := range sorted {
		g.index[t.ID] = i
		g.inDegree[t.ID] = 0
	}

	seen := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		if e.Kind != curriculum.KindRequired {
			continue
		}
		if _, ok := g.index[e.TopicID]; !ok {
			continue
		}
		if _, ok := g.index[e.PrerequisiteID]; !ok {
			continue
		}
		key := [2]string{e.TopicID, e.PrerequisiteID}
		if seen[key] {
			continue
		}
		seen[key] = true

		g.dependents[e.PrerequisiteID] = append(g.dependents[e.PrerequisiteID], e.TopicID)
		g.prerequisites[e.TopicID] = append(g.prerequisites[e.TopicID], e.PrerequisiteID)
		g.inDegree[e.TopicID]++
	}

	return g
}

// Topics returns the course's topics in ordinal order.
func (g *Graph) Topics() []curriculum.Topic {
	return g.topics
}

// Topic looks up a topic by ID.
func (g *Graph) Topic(id string) (curriculum.Topic, bool) {
	i, ok := g.index[id]
	if !ok {
		return curriculum.Topic{}, false
	}
	return g.topics[i], true
}

// Dependents returns the topics that require id.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// Prerequisites returns the required prerequisites of id.
func (g *Graph) Prerequisites(id string) []string {
	return g.prerequisites[id]
}

// InDegree returns the number of required prerequisites of id.
func (g *Graph) InDegree(id string) int {
	return g.inDegree[id]
}
