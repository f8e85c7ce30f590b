package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
)

// StoredScheduleDays is the default window of StoredSchedule.
const StoredScheduleDays = 30

var tracer = otel.Tracer("github.com/p-n-ai/pai-planner/internal/planner")

// Config wires a Service.
type Config struct {
	Store   Store
	Events  EventLogger
	Cache   PlanCache
	Metrics *Metrics

	// DefaultStudyDays applies when a request names no study days.
	DefaultStudyDays []time.Weekday
	// DefaultHoursPerDay applies when a request omits hours_per_day.
	DefaultHoursPerDay float64

	Now func() time.Time
}

// Service runs planning operations against a Store. Every run reads a fresh
// snapshot and keeps its working state local, so a Service is safe for
// concurrent use.
type Service struct {
	store       Store
	events      EventLogger
	cache       PlanCache
	metrics     *Metrics
	studyDays   []time.Weekday
	hoursPerDay float64
	now         func() time.Time
}

// New validates cfg and builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("planner store is nil")
	}

	s := &Service{
		store:       cfg.Store,
		events:      cfg.Events,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		studyDays:   slices.Clone(cfg.DefaultStudyDays),
		hoursPerDay: cfg.DefaultHoursPerDay,
		now:         cfg.Now,
	}
	if s.events == nil {
		s.events = NopEventLogger{}
	}
	if s.cache == nil {
		s.cache = NopPlanCache{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if len(s.studyDays) == 0 {
		s.studyDays = slices.Clone(DefaultStudyDays)
	}
	if s.hoursPerDay == 0 {
		s.hoursPerDay = 2
	}
	if s.now == nil {
		s.now = time.Now
	}

	defaults := Options{StudyDays: s.studyDays, HoursPerDay: s.hoursPerDay, StartDate: s.today()}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid planner defaults: %w", err)
	}
	return s, nil
}

// ScheduleRequest is the caller's view of allocation options. Empty fields
// fall back to the service defaults.
type ScheduleRequest struct {
	StudyDays   []string `json:"study_days,omitempty"`
	HoursPerDay *float64 `json:"hours_per_day,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
}

// ResolveOptions applies defaults to req and validates the result.
func (s *Service) ResolveOptions(req ScheduleRequest) (Options, error) {
	opts := Options{
		StudyDays:   slices.Clone(s.studyDays),
		HoursPerDay: s.hoursPerDay,
		StartDate:   s.today(),
	}

	days, err := ParseWeekdays(req.StudyDays)
	if err != nil {
		return Options{}, err
	}
	if len(days) > 0 {
		opts.StudyDays = days
	}
	if req.HoursPerDay != nil {
		opts.HoursPerDay = *req.HoursPerDay
	}
	if req.StartDate != "" {
		start, err := ParseDate(req.StartDate)
		if err != nil {
			return Options{}, err
		}
		opts.StartDate = start
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// SchedulePlan is an allocation together with the options that produced it.
type SchedulePlan struct {
	StudentID    string   `json:"student_id"`
	CourseID     string   `json:"course_id"`
	StartDate    Date     `json:"start_date"`
	HoursPerDay  float64  `json:"hours_per_day"`
	StudyDays    []string `json:"study_days"`
	GenerationID string   `json:"generation_id,omitempty"`
	Calendar
}

func newSchedulePlan(studentID, courseID string, opts Options, cal Calendar) SchedulePlan {
	days := make([]string, 0, len(opts.StudyDays))
	for _, d := range opts.StudyDays {
		days = append(days, d.String())
	}
	return SchedulePlan{
		StudentID:   studentID,
		CourseID:    courseID,
		StartDate:   opts.StartDate,
		HoursPerDay: opts.HoursPerDay,
		StudyDays:   days,
		Calendar:    cal,
	}
}

// LearningPath returns the course's topics in prerequisite order with
// projected dates, starting on start (today when empty).
func (s *Service) LearningPath(ctx context.Context, studentID, courseID, start string) (path Path, err error) {
	ctx, done := s.begin(ctx, "learning_path", studentID, courseID)
	defer func() { done(err) }()

	startDate := s.today()
	if start != "" {
		if startDate, err = ParseDate(start); err != nil {
			return Path{}, err
		}
	}

	g, progress, err := s.snapshot(ctx, studentID, courseID)
	if err != nil {
		return Path{}, err
	}

	path = ProjectPath(g, g.Sequence(), progress, startDate)
	s.metrics.observeExclusions(path.Excluded)
	if len(path.Excluded) > 0 {
		slog.Warn("topics excluded from learning path",
			"student_id", studentID,
			"course_id", courseID,
			"excluded", len(path.Excluded),
		)
	}
	return path, nil
}

// Priorities ranks the course's topics for the student, highest first.
func (s *Service) Priorities(ctx context.Context, studentID, courseID string) (out []TopicPriority, err error) {
	ctx, done := s.begin(ctx, "priorities", studentID, courseID)
	defer func() { done(err) }()

	g, progress, err := s.snapshot(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	return g.Prioritize(progress), nil
}

// PreviewSchedule allocates the student's eligible topics over the horizon
// without persisting anything.
func (s *Service) PreviewSchedule(ctx context.Context, studentID, courseID string, req ScheduleRequest) (plan SchedulePlan, err error) {
	ctx, done := s.begin(ctx, "preview_schedule", studentID, courseID)
	defer func() { done(err) }()

	opts, err := s.ResolveOptions(req)
	if err != nil {
		return SchedulePlan{}, err
	}

	var (
		cal Calendar
		hit bool
	)
	key, cacheable := s.cache.CalendarKey(ctx, studentID, courseID, opts)
	if cacheable {
		cal, hit = s.cache.GetCalendar(ctx, key)
		s.metrics.observeCache(hit)
	}
	if !hit {
		if cal, err = s.allocate(ctx, studentID, courseID, opts); err != nil {
			return SchedulePlan{}, err
		}
		if cacheable {
			s.cache.PutCalendar(ctx, key, cal)
		}
	}
	s.metrics.observeExclusions(cal.Excluded)

	s.logEvent(Event{
		StudentID: studentID,
		CourseID:  courseID,
		EventType: EventPlanPreviewed,
		Data: map[string]any{
			"days":     len(cal.Days),
			"excluded": len(cal.Excluded),
			"cached":   hit,
		},
	})
	return newSchedulePlan(studentID, courseID, opts, cal), nil
}

// CommitSchedule allocates afresh and replaces the student's stored schedule
// for the course with the result in one atomic step.
func (s *Service) CommitSchedule(ctx context.Context, studentID, courseID string, req ScheduleRequest) (plan SchedulePlan, err error) {
	ctx, done := s.begin(ctx, "commit_schedule", studentID, courseID)
	defer func() { done(err) }()

	opts, err := s.ResolveOptions(req)
	if err != nil {
		return SchedulePlan{}, err
	}
	cal, err := s.allocate(ctx, studentID, courseID, opts)
	if err != nil {
		return SchedulePlan{}, err
	}
	s.metrics.observeExclusions(cal.Excluded)

	generation := uuid.New()
	createdAt := s.now()
	entries := cal.Entries(studentID, courseID)
	for i := range entries {
		entries[i].ID = uuid.NewString()
		entries[i].GenerationID = generation.String()
		entries[i].CreatedAt = createdAt
	}

	if err := s.store.ReplaceScheduleEntries(ctx, studentID, courseID, entries); err != nil {
		return SchedulePlan{}, fmt.Errorf("replace schedule: %w", err)
	}
	s.cache.InvalidateStudent(ctx, studentID)

	slog.Info("schedule committed",
		"student_id", studentID,
		"course_id", courseID,
		"generation_id", generation.String(),
		"entries", len(entries),
		"excluded", len(cal.Excluded),
	)
	s.logEvent(Event{
		StudentID: studentID,
		CourseID:  courseID,
		EventType: EventScheduleCommitted,
		Data: map[string]any{
			"generation_id": generation.String(),
			"entries":       len(entries),
			"excluded":      len(cal.Excluded),
		},
	})

	plan = newSchedulePlan(studentID, courseID, opts, cal)
	plan.GenerationID = generation.String()
	return plan, nil
}

// StoredSchedule lists committed entries between from and to inclusive.
// Empty bounds default to today and today plus StoredScheduleDays.
func (s *Service) StoredSchedule(ctx context.Context, studentID, from, to string) (entries []ScheduleEntry, err error) {
	ctx, done := s.begin(ctx, "stored_schedule", studentID, "")
	defer func() { done(err) }()

	fromDate := s.today()
	if from != "" {
		if fromDate, err = ParseDate(from); err != nil {
			return nil, err
		}
	}
	toDate := fromDate.AddDays(StoredScheduleDays)
	if to != "" {
		if toDate, err = ParseDate(to); err != nil {
			return nil, err
		}
	}
	if toDate.Before(fromDate.Time) {
		return nil, fmt.Errorf("%w: to %s is before from %s", ErrInvalidDate, toDate, fromDate)
	}

	entries, err = s.store.ListScheduleEntries(ctx, studentID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	if entries == nil {
		entries = []ScheduleEntry{}
	}
	return entries, nil
}

// RecordProgress stores the student's progress on a topic.
func (s *Service) RecordProgress(ctx context.Context, p Progress) (rec Progress, err error) {
	ctx, done := s.begin(ctx, "record_progress", p.StudentID, "")
	defer func() { done(err) }()

	if p.Status == "" {
		p.Status = StatusNotStarted
	}
	p.UpdatedAt = s.now()
	if err := s.store.UpsertProgress(ctx, p); err != nil {
		return Progress{}, err
	}
	s.cache.InvalidateStudent(ctx, p.StudentID)

	courseID := ""
	if topic, err := s.store.GetTopic(ctx, p.TopicID); err == nil {
		courseID = topic.CourseID
	}
	s.logEvent(Event{
		StudentID: p.StudentID,
		CourseID:  courseID,
		EventType: EventProgressRecorded,
		Data: map[string]any{
			"topic_id":            p.TopicID,
			"status":              string(p.Status),
			"understanding_level": p.Understanding,
		},
	})
	return p, nil
}

// CourseWorkload summarises a student's load on one course.
type CourseWorkload struct {
	CourseID       string  `json:"course_id"`
	CourseName     string  `json:"course_name"`
	Topics         int     `json:"topics"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"in_progress"`
	TotalHours     float64 `json:"total_hours"`
	RemainingHours float64 `json:"remaining_hours"`
	SpentHours     float64 `json:"spent_hours"`
}

// Workload summarises the student's load across every course with topics.
func (s *Service) Workload(ctx context.Context, studentID string) (out []CourseWorkload, err error) {
	ctx, done := s.begin(ctx, "workload", studentID, "")
	defer func() { done(err) }()

	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	records, err := s.store.ListStudentProgress(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	progress := make(map[string]Progress, len(records))
	for _, p := range records {
		progress[p.TopicID] = p
	}

	out = []CourseWorkload{}
	for _, c := range courses {
		topics, err := s.store.ListTopics(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("list topics: %w", err)
		}
		if len(topics) == 0 {
			continue
		}

		w := CourseWorkload{CourseID: c.ID, CourseName: c.Name, Topics: len(topics)}
		for _, t := range topics {
			w.TotalHours += t.EstimatedHours
			rec := progress[t.ID]
			w.SpentHours += rec.TimeSpentHours
			switch rec.Status {
			case StatusCompleted:
				w.Completed++
			case StatusInProgress:
				w.InProgress++
				w.RemainingHours += t.EstimatedHours
			default:
				w.RemainingHours += t.EstimatedHours
			}
		}
		out = append(out, w)
	}
	return out, nil
}

// AddDependency stores a prerequisite edge. Cached plans of every student
// are dropped because the graph changed.
func (s *Service) AddDependency(ctx context.Context, dep curriculum.Dependency) (err error) {
	ctx, done := s.begin(ctx, "add_dependency", "", "")
	defer func() { done(err) }()

	if dep.Kind == "" {
		dep.Kind = curriculum.KindRequired
	}
	if err := s.store.AddDependency(ctx, dep); err != nil {
		return err
	}
	s.cache.InvalidateAll(ctx)

	slog.Info("dependency added",
		"topic_id", dep.TopicID,
		"prerequisite_topic_id", dep.PrerequisiteID,
		"kind", dep.Kind,
	)
	return nil
}

// ListDependencies returns a topic's prerequisites with names and kinds.
func (s *Service) ListDependencies(ctx context.Context, topicID string) (deps []curriculum.Dependency, err error) {
	ctx, done := s.begin(ctx, "list_dependencies", "", "")
	defer func() { done(err) }()

	deps, err = s.store.ListDependencies(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if deps == nil {
		deps = []curriculum.Dependency{}
	}
	return deps, nil
}

// SyncCurriculum loads courses and topics into the store and drops every
// cached plan.
func (s *Service) SyncCurriculum(ctx context.Context, courses []curriculum.Course, topics []curriculum.Topic) (err error) {
	ctx, done := s.begin(ctx, "sync_curriculum", "", "")
	defer func() { done(err) }()

	if err := s.store.SyncCurriculum(ctx, courses, topics); err != nil {
		return fmt.Errorf("sync curriculum: %w", err)
	}
	s.cache.InvalidateAll(ctx)
	return nil
}

// HealthCheck verifies the backing store.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

func (s *Service) allocate(ctx context.Context, studentID, courseID string, opts Options) (Calendar, error) {
	g, progress, err := s.snapshot(ctx, studentID, courseID)
	if err != nil {
		return Calendar{}, err
	}
	cal, err := Allocate(g.Prioritize(progress), opts)
	if err != nil {
		return Calendar{}, err
	}
	if len(cal.Excluded) > 0 {
		slog.Warn("topics did not fit the planning horizon",
			"student_id", studentID,
			"course_id", courseID,
			"excluded", len(cal.Excluded),
		)
	}
	return cal, nil
}

// snapshot reads the course graph and the student's progress once, at the
// start of a run.
func (s *Service) snapshot(ctx context.Context, studentID, courseID string) (*Graph, map[string]Progress, error) {
	topics, err := s.store.ListTopics(ctx, courseID)
	if err != nil {
		return nil, nil, fmt.Errorf("list topics: %w", err)
	}
	if len(topics) == 0 {
		if err := s.requireCourse(ctx, courseID); err != nil {
			return nil, nil, err
		}
	}

	edges, err := s.store.ListRequiredEdges(ctx, courseID)
	if err != nil {
		return nil, nil, fmt.Errorf("list required edges: %w", err)
	}

	progress := make(map[string]Progress, len(topics))
	for _, t := range topics {
		rec, ok, err := s.store.GetProgress(ctx, studentID, t.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("get progress: %w", err)
		}
		if ok {
			progress[t.ID] = rec
		}
	}

	return BuildGraph(topics, edges), progress, nil
}

func (s *Service) requireCourse(ctx context.Context, courseID string) error {
	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	for _, c := range courses {
		if c.ID == courseID {
			return nil
		}
	}
	return fmt.Errorf("course %s: %w", courseID, ErrNotFound)
}

// begin opens a span for operation and returns the callback that closes it
// and records metrics.
func (s *Service) begin(ctx context.Context, operation, studentID, courseID string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("planner.operation", operation)}
	if studentID != "" {
		attrs = append(attrs, attribute.String("planner.student_id", studentID))
	}
	if courseID != "" {
		attrs = append(attrs, attribute.String("planner.course_id", courseID))
	}
	ctx, span := tracer.Start(ctx, "planner."+operation, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if !IsClientError(err) {
				slog.Error("planner operation failed", "operation", operation, "error", err)
			}
		}
		span.End()
		s.metrics.observeRun(operation, start, err)
	}
}

func (s *Service) logEvent(event Event) {
	if err := s.events.LogEvent(event); err != nil {
		slog.Warn("failed to log planner event", "type", event.EventType, "error", err)
	}
}

func (s *Service) today() Date {
	return NewDate(s.now())
}

// IsClientError reports whether err comes from bad input or an unknown
// resource rather than a failing dependency.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidHoursPerDay,
		ErrInvalidStudyDays,
		ErrInvalidWeekday,
		ErrInvalidDate,
		ErrInvalidProgress,
		ErrInvalidDependency,
		ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
