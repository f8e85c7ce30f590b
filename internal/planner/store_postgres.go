package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/platform/database"
)

const (
	dbTimeout   = 5 * time.Second
	syncTimeout = 60 * time.Second

	pgForeignKeyViolation = "23503"
)

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed planner store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// SyncCurriculum upserts courses, topics and their prerequisite edges.
// Edges pointing at topics that do not exist are skipped.
func (s *PostgresStore) SyncCurriculum(ctx context.Context, courses []curriculum.Course, topics []curriculum.Topic) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	known := make(map[string]bool, len(courses))
	for _, c := range courses {
		known[c.ID] = true
	}
	for _, t := range topics {
		if !known[t.CourseID] {
			courses = append(courses, curriculum.Course{ID: t.CourseID, Name: t.CourseID})
			known[t.CourseID] = true
		}
	}

	skipped := 0
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, c := range courses {
			if _, err := tx.Exec(ctx,
				`INSERT INTO courses (id, name) VALUES ($1, $2)
				 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
				c.ID, c.Name,
			); err != nil {
				return fmt.Errorf("upsert course %s: %w", c.ID, err)
			}
		}

		for _, t := range topics {
			if _, err := tx.Exec(ctx,
				`INSERT INTO topics (id, course_id, name, chapter, position, importance, estimated_hours)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (id) DO UPDATE SET
				   course_id = EXCLUDED.course_id,
				   name = EXCLUDED.name,
				   chapter = EXCLUDED.chapter,
				   position = EXCLUDED.position,
				   importance = EXCLUDED.importance,
				   estimated_hours = EXCLUDED.estimated_hours`,
				t.ID, t.CourseID, t.Name, t.Chapter, t.Position, t.Importance, t.EstimatedHours,
			); err != nil {
				return fmt.Errorf("upsert topic %s: %w", t.ID, err)
			}
		}

		for _, t := range topics {
			for _, d := range t.Dependencies() {
				cmd, err := tx.Exec(ctx,
					`INSERT INTO topic_dependencies (topic_id, prerequisite_topic_id, dependency_type)
					 SELECT $1::text, $2::text, $3::text
					 WHERE EXISTS (SELECT 1 FROM topics WHERE id = $2::text)
					 ON CONFLICT (topic_id, prerequisite_topic_id)
					 DO UPDATE SET dependency_type = EXCLUDED.dependency_type`,
					d.TopicID, d.PrerequisiteID, string(d.Kind),
				)
				if err != nil {
					return fmt.Errorf("upsert dependency %s -> %s: %w", d.TopicID, d.PrerequisiteID, err)
				}
				if cmd.RowsAffected() == 0 {
					skipped++
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("curriculum synced to database",
		"courses", len(courses),
		"topics", len(topics),
		"skipped_dependencies", skipped,
	)
	return nil
}

func (s *PostgresStore) ListCourses(ctx context.Context) ([]curriculum.Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, name FROM courses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	courses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (curriculum.Course, error) {
		var c curriculum.Course
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan courses: %w", err)
	}
	return courses, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context, courseID string) ([]curriculum.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, course_id, name, chapter, position, importance, estimated_hours
		 FROM topics
		 WHERE course_id = $1
		 ORDER BY chapter, position, id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	topics, err := pgx.CollectRows(rows, scanTopic)
	if err != nil {
		return nil, fmt.Errorf("scan topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, topicID string) (curriculum.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, course_id, name, chapter, position, importance, estimated_hours
		 FROM topics
		 WHERE id = $1`,
		topicID,
	)
	if err != nil {
		return curriculum.Topic{}, fmt.Errorf("query topic: %w", err)
	}
	topic, err := pgx.CollectExactlyOneRow(rows, scanTopic)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return curriculum.Topic{}, fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
		}
		return curriculum.Topic{}, fmt.Errorf("get topic: %w", err)
	}
	return topic, nil
}

func (s *PostgresStore) ListRequiredEdges(ctx context.Context, courseID string) ([]curriculum.Dependency, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT d.topic_id, d.prerequisite_topic_id, p.name, d.dependency_type
		 FROM topic_dependencies d
		 JOIN topics t ON t.id = d.topic_id
		 JOIN topics p ON p.id = d.prerequisite_topic_id
		 WHERE t.course_id = $1
		   AND d.dependency_type = 'required'
		 ORDER BY d.topic_id, d.prerequisite_topic_id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query required edges: %w", err)
	}
	edges, err := pgx.CollectRows(rows, scanDependency)
	if err != nil {
		return nil, fmt.Errorf("scan required edges: %w", err)
	}
	return edges, nil
}

func (s *PostgresStore) ListDependencies(ctx context.Context, topicID string) ([]curriculum.Dependency, error) {
	if _, err := s.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT d.topic_id, d.prerequisite_topic_id, p.name, d.dependency_type
		 FROM topic_dependencies d
		 JOIN topics p ON p.id = d.prerequisite_topic_id
		 WHERE d.topic_id = $1
		 ORDER BY d.prerequisite_topic_id`,
		topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	deps, err := pgx.CollectRows(rows, scanDependency)
	if err != nil {
		return nil, fmt.Errorf("scan dependencies: %w", err)
	}
	return deps, nil
}

func (s *PostgresStore) AddDependency(ctx context.Context, dep curriculum.Dependency) error {
	if err := validateDependency(dep); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO topic_dependencies (topic_id, prerequisite_topic_id, dependency_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (topic_id, prerequisite_topic_id)
		 DO UPDATE SET dependency_type = EXCLUDED.dependency_type`,
		dep.TopicID, dep.PrerequisiteID, string(dep.Kind),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("dependency %s -> %s: %w", dep.TopicID, dep.PrerequisiteID, ErrNotFound)
		}
		return fmt.Errorf("insert dependency: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProgress(ctx context.Context, studentID, topicID string) (Progress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p := Progress{StudentID: studentID, TopicID: topicID}
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT completion_status, understanding_level, time_spent_hours, updated_at
		 FROM topic_progress
		 WHERE student_id = $1 AND topic_id = $2`,
		studentID, topicID,
	).Scan(&status, &p.Understanding, &p.TimeSpentHours, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Progress{}, false, nil
		}
		return Progress{}, false, fmt.Errorf("get progress: %w", err)
	}
	p.Status = Status(status)
	return p, true, nil
}

func (s *PostgresStore) UpsertProgress(ctx context.Context, p Progress) error {
	if err := p.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO topic_progress (student_id, topic_id, completion_status, understanding_level, time_spent_hours, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (student_id, topic_id) DO UPDATE SET
		   completion_status = EXCLUDED.completion_status,
		   understanding_level = EXCLUDED.understanding_level,
		   time_spent_hours = EXCLUDED.time_spent_hours,
		   updated_at = EXCLUDED.updated_at`,
		p.StudentID, p.TopicID, string(p.Status), p.Understanding, p.TimeSpentHours, updatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("topic %s: %w", p.TopicID, ErrNotFound)
		}
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStudentProgress(ctx context.Context, studentID string) ([]Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id, topic_id, completion_status, understanding_level, time_spent_hours, updated_at
		 FROM topic_progress
		 WHERE student_id = $1
		 ORDER BY topic_id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Progress, error) {
		var p Progress
		var status string
		err := row.Scan(&p.StudentID, &p.TopicID, &status, &p.Understanding, &p.TimeSpentHours, &p.UpdatedAt)
		p.Status = Status(status)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	return out, nil
}

// ReplaceScheduleEntries deletes the scope's entries and inserts the new
// generation in one transaction.
func (s *PostgresStore) ReplaceScheduleEntries(ctx context.Context, studentID, courseID string, entries []ScheduleEntry) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM schedule_entries WHERE student_id = $1 AND course_id = $2`,
			studentID, courseID,
		); err != nil {
			return fmt.Errorf("clear schedule: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			createdAt := e.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			batch.Queue(
				`INSERT INTO schedule_entries
				   (id, generation_id, student_id, course_id, topic_id, study_date, hours, priority, created_at)
				 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9)`,
				e.ID, e.GenerationID, studentID, courseID, e.TopicID, e.Date.Time, e.Hours, e.Priority, createdAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert schedule entry: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close schedule batch: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListScheduleEntries(ctx context.Context, studentID string, from, to Date) ([]ScheduleEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT e.id::text, e.generation_id::text, e.student_id, e.course_id, e.topic_id, t.name,
		        e.study_date, e.hours, e.priority, e.created_at
		 FROM schedule_entries e
		 JOIN topics t ON t.id = e.topic_id
		 WHERE e.student_id = $1
		   AND e.study_date BETWEEN $2 AND $3
		 ORDER BY e.study_date, e.priority DESC, e.course_id, e.topic_id`,
		studentID, from.Time, to.Time,
	)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ScheduleEntry, error) {
		var e ScheduleEntry
		var studyDate time.Time
		err := row.Scan(&e.ID, &e.GenerationID, &e.StudentID, &e.CourseID, &e.TopicID, &e.TopicName,
			&studyDate, &e.Hours, &e.Priority, &e.CreatedAt)
		e.Date = NewDate(studyDate)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanTopic(row pgx.CollectableRow) (curriculum.Topic, error) {
	var t curriculum.Topic
	err := row.Scan(&t.ID, &t.CourseID, &t.Name, &t.Chapter, &t.Position, &t.Importance, &t.EstimatedHours)
	return t, err
}

func scanDependency(row pgx.CollectableRow) (curriculum.Dependency, error) {
	var d curriculum.Dependency
	var kind string
	err := row.Scan(&d.TopicID, &d.PrerequisiteID, &d.PrerequisiteName, &kind)
	d.Kind = curriculum.DependencyKind(kind)
	return d, err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
