package planner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
)

// TopicStore reads and authors course content.
type TopicStore interface {
	ListCourses(ctx context.Context) ([]curriculum.Course, error)
	ListTopics(ctx context.Context, courseID string) ([]curriculum.Topic, error)
	GetTopic(ctx context.Context, topicID string) (curriculum.Topic, error)
	ListRequiredEdges(ctx context.Context, courseID string) ([]curriculum.Dependency, error)
	ListDependencies(ctx context.Context, topicID string) ([]curriculum.Dependency, error)
	AddDependency(ctx context.Context, dep curriculum.Dependency) error
	SyncCurriculum(ctx context.Context, courses []curriculum.Course, topics []curriculum.Topic) error
}

// ProgressStore persists per-student topic progress.
type ProgressStore interface {
	// GetProgress returns false when the student has no record for the topic.
	GetProgress(ctx context.Context, studentID, topicID string) (Progress, bool, error)
	UpsertProgress(ctx context.Context, p Progress) error
	ListStudentProgress(ctx context.Context, studentID string) ([]Progress, error)
}

// ScheduleStore persists committed schedules.
type ScheduleStore interface {
	// ReplaceScheduleEntries atomically swaps every entry of the
	// (student, course) scope for entries.
	ReplaceScheduleEntries(ctx context.Context, studentID, courseID string, entries []ScheduleEntry) error
	ListScheduleEntries(ctx context.Context, studentID string, from, to Date) ([]ScheduleEntry, error)
}

// Store is everything the planner reads and writes.
type Store interface {
	TopicStore
	ProgressStore
	ScheduleStore
	HealthCheck(ctx context.Context) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	courses   map[string]curriculum.Course
	topics    map[string]curriculum.Topic
	deps      map[[2]string]curriculum.Dependency
	progress  map[[2]string]Progress
	schedules map[[2]string][]ScheduleEntry
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory planner store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:   make(map[string]curriculum.Course),
		topics:    make(map[string]curriculum.Topic),
		deps:      make(map[[2]string]curriculum.Dependency),
		progress:  make(map[[2]string]Progress),
		schedules: make(map[[2]string][]ScheduleEntry),
	}
}

func (s *MemoryStore) SyncCurriculum(_ context.Context, courses []curriculum.Course, topics []curriculum.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range courses {
		s.courses[c.ID] = c
	}
	for _, t := range topics {
		if _, ok := s.courses[t.CourseID]; !ok {
			s.courses[t.CourseID] = curriculum.Course{ID: t.CourseID, Name: t.CourseID}
		}
		s.topics[t.ID] = t
		for _, d := range t.Dependencies() {
			s.deps[[2]string{d.TopicID, d.PrerequisiteID}] = d
		}
	}
	return nil
}

func (s *MemoryStore) ListCourses(_ context.Context) ([]curriculum.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	courses := make([]curriculum.Course, 0, len(s.courses))
	for _, c := range s.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

func (s *MemoryStore) ListTopics(_ context.Context, courseID string) ([]curriculum.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var topics []curriculum.Topic
	for _, t := range s.topics {
		if t.CourseID == courseID {
			topics = append(topics, t)
		}
	}
	curriculum.SortTopics(topics)
	return topics, nil
}

func (s *MemoryStore) GetTopic(_ context.Context, topicID string) (curriculum.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.topics[topicID]
	if !ok {
		return curriculum.Topic{}, fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
	}
	return t, nil
}

func (s *MemoryStore) ListRequiredEdges(_ context.Context, courseID string) ([]curriculum.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []curriculum.Dependency
	for _, d := range s.deps {
		if d.Kind != curriculum.KindRequired {
			continue
		}
		if t, ok := s.topics[d.TopicID]; ok && t.CourseID == courseID {
			edges = append(edges, d)
		}
	}
	sortDependencies(edges)
	return edges, nil
}

func (s *MemoryStore) ListDependencies(_ context.Context, topicID string) ([]curriculum.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.topics[topicID]; !ok {
		return nil, fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
	}

	var deps []curriculum.Dependency
	for _, d := range s.deps {
		if d.TopicID != topicID {
			continue
		}
		if p, ok := s.topics[d.PrerequisiteID]; ok {
			d.PrerequisiteName = p.Name
		}
		deps = append(deps, d)
	}
	sortDependencies(deps)
	return deps, nil
}

func (s *MemoryStore) AddDependency(_ context.Context, dep curriculum.Dependency) error {
	if err := validateDependency(dep); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{dep.TopicID, dep.PrerequisiteID} {
		if _, ok := s.topics[id]; !ok {
			return fmt.Errorf("topic %s: %w", id, ErrNotFound)
		}
	}
	dep.PrerequisiteName = ""
	s.deps[[2]string{dep.TopicID, dep.PrerequisiteID}] = dep
	return nil
}

func (s *MemoryStore) GetProgress(_ context.Context, studentID, topicID string) (Progress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[[2]string{studentID, topicID}]
	return p, ok, nil
}

func (s *MemoryStore) UpsertProgress(_ context.Context, p Progress) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[p.TopicID]; !ok {
		return fmt.Errorf("topic %s: %w", p.TopicID, ErrNotFound)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.progress[[2]string{p.StudentID, p.TopicID}] = p
	return nil
}

func (s *MemoryStore) ListStudentProgress(_ context.Context, studentID string) ([]Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Progress
	for key, p := range s.progress {
		if key[0] == studentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

// ReplaceScheduleEntries swaps the scope's slice under the write lock, so a
// reader sees either the previous generation or the new one in full.
func (s *MemoryStore) ReplaceScheduleEntries(_ context.Context, studentID, courseID string, entries []ScheduleEntry) error {
	generation := append([]ScheduleEntry(nil), entries...)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{studentID, courseID}
	if len(generation) == 0 {
		delete(s.schedules, key)
		return nil
	}
	s.schedules[key] = generation
	return nil
}

func (s *MemoryStore) ListScheduleEntries(_ context.Context, studentID string, from, to Date) ([]ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ScheduleEntry
	for key, entries := range s.schedules {
		if key[0] != studentID {
			continue
		}
		for _, e := range entries {
			if e.Date.Before(from.Time) || e.Date.After(to.Time) {
				continue
			}
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

func validateDependency(dep curriculum.Dependency) error {
	if dep.TopicID == "" || dep.PrerequisiteID == "" {
		return fmt.Errorf("%w: topic_id and prerequisite_topic_id are required", ErrInvalidDependency)
	}
	if dep.TopicID == dep.PrerequisiteID {
		return fmt.Errorf("%w: a topic cannot require itself", ErrInvalidDependency)
	}
	if !dep.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDependency, dep.Kind)
	}
	return nil
}

func sortDependencies(deps []curriculum.Dependency) {
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].TopicID != deps[j].TopicID {
			return deps[i].TopicID < deps[j].TopicID
		}
		return deps[i].PrerequisiteID < deps[j].PrerequisiteID
	})
}

// sortEntries orders entries by date, then priority descending.
func sortEntries(entries []ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date.Time) {
			return entries[i].Date.Before(entries[j].Date.Time)
		}
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		if entries[i].CourseID != entries[j].CourseID {
			return entries[i].CourseID < entries[j].CourseID
		}
		return entries[i].TopicID < entries[j].TopicID
	})
}
