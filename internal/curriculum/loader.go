package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const courseSuffix = ".course.yaml"

// Loader loads and caches curriculum content from the filesystem.
type Loader struct {
	rootDir string
	topics  map[string]Topic
	courses map[string]Course
	mu      sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		topics:  make(map[string]Topic),
		courses: make(map[string]Course),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "topics", len(l.topics), "courses", len(l.courses))
	return l, nil
}

// GetTopic returns a topic by ID.
func (l *Loader) GetTopic(id string) (Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[id]
	return t, ok
}

// AllTopics returns all loaded topics grouped by course in ordinal order.
func (l *Loader) AllTopics() []Topic {
	l.mu.RLock()
	topics := make([]Topic, 0, len(l.topics))
	for _, t := range l.topics {
		topics = append(topics, t)
	}
	l.mu.RUnlock()

	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].CourseID != topics[j].CourseID {
			return topics[i].CourseID < topics[j].CourseID
		}
		return topicLess(topics[i], topics[j])
	})
	return topics
}

// TopicsForCourse returns the course's topics in ordinal order.
func (l *Loader) TopicsForCourse(courseID string) []Topic {
	l.mu.RLock()
	var topics []Topic
	for _, t := range l.topics {
		if t.CourseID == courseID {
			topics = append(topics, t)
		}
	}
	l.mu.RUnlock()

	SortTopics(topics)
	return topics
}

// Courses returns every course that has a course file or at least one topic.
// Courses without a course file are named after their ID.
func (l *Loader) Courses() []Course {
	l.mu.RLock()
	seen := make(map[string]Course, len(l.courses))
	for id, c := range l.courses {
		seen[id] = c
	}
	for _, t := range l.topics {
		if _, ok := seen[t.CourseID]; !ok {
			seen[t.CourseID] = Course{ID: t.CourseID, Name: t.CourseID}
		}
	}
	l.mu.RUnlock()

	courses := make([]Course, 0, len(seen))
	for _, c := range seen {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, courseSuffix):
			return l.loadCourse(path)
		case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
			if strings.HasSuffix(path, ".assessments.yaml") || strings.HasSuffix(path, ".examples.yaml") {
				return nil // Skip non-topic YAML
			}
			return l.loadTopic(path)
		}
		return nil
	})
}

func (l *Loader) loadTopic(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}
	if id, _ := doc["id"].(string); id == "" {
		return nil // Not a topic file
	}
	if err := ValidateTopicDocument(doc); err != nil {
		slog.Warn("skipping topic that fails schema", "path", path, "error", err)
		return nil
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	l.topics[topic.ID] = topic
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var course Course
	if err := yaml.Unmarshal(data, &course); err != nil || course.ID == "" {
		slog.Warn("skipping invalid course YAML", "path", path)
		return nil
	}
	if course.Name == "" {
		course.Name = course.ID
	}

	l.mu.Lock()
	l.courses[course.ID] = course
	l.mu.Unlock()

	return nil
}
