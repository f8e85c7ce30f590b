package curriculum

import "sort"

// DependencyKind classifies a prerequisite relationship.
type DependencyKind string

const (
	// KindRequired is a hard prerequisite: it orders topics and blocks scheduling.
	KindRequired DependencyKind = "required"
	// KindRecommended is informational only.
	KindRecommended DependencyKind = "recommended"
)

// Valid reports whether k is a known dependency kind.
func (k DependencyKind) Valid() bool {
	return k == KindRequired || k == KindRecommended
}

// Topic represents a curriculum topic loaded from YAML.
type Topic struct {
	ID             string        `yaml:"id" json:"id"`
	Name           string        `yaml:"name" json:"name"`
	CourseID       string        `yaml:"course_id" json:"course_id"`
	Chapter        int           `yaml:"chapter" json:"chapter"`
	Position       int           `yaml:"position" json:"position"`
	Importance     int           `yaml:"importance" json:"importance"`
	EstimatedHours float64       `yaml:"estimated_hours" json:"estimated_hours"`
	Prerequisites  Prerequisites `yaml:"prerequisites" json:"prerequisites"`
}

// Prerequisites holds required and recommended prerequisites.
type Prerequisites struct {
	Required    []string `yaml:"required" json:"required,omitempty"`
	Recommended []string `yaml:"recommended" json:"recommended,omitempty"`
}

// Dependencies flattens the topic's prerequisite lists into edges.
func (t Topic) Dependencies() []Dependency {
	deps := make([]Dependency, 0, len(t.Prerequisites.Required)+len(t.Prerequisites.Recommended))
	for _, p := range t.Prerequisites.Required {
		deps = append(deps, Dependency{TopicID: t.ID, PrerequisiteID: p, Kind: KindRequired})
	}
	for _, p := range t.Prerequisites.Recommended {
		deps = append(deps, Dependency{TopicID: t.ID, PrerequisiteID: p, Kind: KindRecommended})
	}
	return deps
}

// Dependency is a directed edge: TopicID depends on PrerequisiteID.
type Dependency struct {
	TopicID          string         `json:"topic_id"`
	PrerequisiteID   string         `json:"prerequisite_topic_id"`
	PrerequisiteName string         `json:"prerequisite_name,omitempty"`
	Kind             DependencyKind `json:"kind"`
}

// Course groups topics (e.g., CS101 Data Structures).
type Course struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// SortTopics orders topics by chapter, position, then ID.
func SortTopics(topics []Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		return topicLess(topics[i], topics[j])
	})
}

func topicLess(a, b Topic) bool {
	if a.Chapter != b.Chapter {
		return a.Chapter < b.Chapter
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.ID < b.ID
}
