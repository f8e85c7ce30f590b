package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-planner/internal/api"
	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/export"
	"github.com/p-n-ai/pai-planner/internal/notify"
	"github.com/p-n-ai/pai-planner/internal/planner"
)

// Monday.
var fixedNow = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	srv   *httptest.Server
	store *planner.MemoryStore
	hub   *notify.Hub
}

func newFixture(t *testing.T, mutate func(*api.Config)) fixture {
	t.Helper()

	store := planner.NewMemoryStore()
	require.NoError(t, store.SyncCurriculum(context.Background(),
		[]curriculum.Course{{ID: "CS101", Name: "Data Structures"}},
		[]curriculum.Topic{
			{ID: "A", Name: "Arrays", CourseID: "CS101", Chapter: 1, Position: 1, Importance: 5, EstimatedHours: 4},
			{ID: "B", Name: "Lists", CourseID: "CS101", Chapter: 1, Position: 2, Importance: 3, EstimatedHours: 2,
				Prerequisites: curriculum.Prerequisites{Required: []string{"A"}}},
		},
	))

	hub := notify.NewHub()
	svc, err := planner.New(planner.Config{
		Store:              store,
		Events:             hub,
		DefaultStudyDays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DefaultHoursPerDay: 2,
		Now:                func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	cfg := api.Config{
		Planner:  svc,
		Hub:      hub,
		Registry: prometheus.NewRegistry(),
		Checks:   []api.Check{{Name: "store", Func: store.HealthCheck}},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := httptest.NewServer(api.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return fixture{srv: srv, store: store, hub: hub}
}

func (f fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ready"}`, string(body))
}

func TestReadyz_FailingCheck(t *testing.T) {
	f := newFixture(t, func(cfg *api.Config) {
		cfg.Checks = append(cfg.Checks, api.Check{Name: "cache", Func: func(context.Context) error {
			return errors.New("connection refused")
		}})
	})

	resp, body := f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"cache":"connection refused"}}`, string(body))
}

func TestLearningPath(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/v1/students/s1/courses/CS101/path?start_date=2024-03-04", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	path := decode[planner.Path](t, body)
	require.Len(t, path.Steps, 2)
	assert.Equal(t, "A", path.Steps[0].TopicID)
	assert.Equal(t, "2024-03-04", path.Steps[0].StartDate.String())
	assert.Equal(t, "B", path.Steps[1].TopicID)

	resp, body = f.do(t, http.MethodGet, "/v1/students/s1/courses/CS101/path?start_date=03/04/2024", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"error"`)
}

func TestUnknownCourse(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/v1/students/s1/courses/NOPE/priorities", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not found")
}

func TestPriorities(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/v1/students/s1/courses/CS101/priorities", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[struct {
		Priorities []planner.TopicPriority `json:"priorities"`
	}](t, body)
	require.Len(t, got.Priorities, 2)
	assert.Equal(t, "A", got.Priorities[0].TopicID)
	assert.True(t, got.Priorities[1].Blocked)
}

func TestPreviewSchedule(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/v1/students/s1/courses/CS101/schedule/preview",
		`{"hours_per_day": 3, "study_days": ["Monday"], "start_date": "2024-03-04"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	plan := decode[planner.SchedulePlan](t, body)
	assert.Equal(t, []string{"Monday"}, plan.StudyDays)
	require.NotEmpty(t, plan.Days)
	assert.Equal(t, "2024-03-04", plan.Days[0].Date.String())
	assert.Equal(t, "A", plan.Days[0].Topics[0].TopicID)
	for _, d := range plan.Days {
		assert.Equal(t, "Monday", d.Weekday)
	}

	resp, _ = f.do(t, http.MethodPost, "/v1/students/s1/courses/CS101/schedule/preview", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "empty body uses defaults")
}

func TestPreviewSchedule_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"hours_per_day":`},
		{"wrong type", `{"hours_per_day": "three"}`},
		{"unknown field", `{"hours": 3}`},
		{"hours out of range", `{"hours_per_day": 13}`},
		{"zero hours", `{"hours_per_day": 0}`},
		{"unknown weekday", `{"study_days": ["someday"]}`},
		{"bad date", `{"start_date": "tomorrow"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/v1/students/s1/courses/CS101/schedule/preview", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
			assert.NotEmpty(t, decode[map[string]string](t, body)["error"])
		})
	}
}

func TestCommitAndStoredSchedule(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPut, "/v1/students/s1/courses/CS101/schedule", `{"hours_per_day": 2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	plan := decode[planner.SchedulePlan](t, body)
	assert.NotEmpty(t, plan.GenerationID)

	resp, body = f.do(t, http.MethodGet, "/v1/students/s1/schedule?from=2024-03-04&to=2024-03-31", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[struct {
		Entries []planner.ScheduleEntry `json:"entries"`
	}](t, body)
	require.NotEmpty(t, got.Entries)
	assert.Equal(t, plan.GenerationID, got.Entries[0].GenerationID)
	assert.Equal(t, "A", got.Entries[0].TopicID)

	resp, _ = f.do(t, http.MethodGet, "/v1/students/s1/schedule?from=2024-03-31&to=2024-03-04", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/v1/students/nobody/schedule", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"entries":[]}`, string(body))
}

func TestCommitSchedule_RateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *api.Config) { cfg.CommitsPerMinute = 1 })

	resp, _ := f.do(t, http.MethodPut, "/v1/students/s1/courses/CS101/schedule", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodPut, "/v1/students/s1/courses/CS101/schedule", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.JSONEq(t, `{"error":"too many requests"}`, string(body))

	resp, _ = f.do(t, http.MethodPut, "/v1/students/s2/courses/CS101/schedule", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "limits are per student")
}

func TestRecordProgress(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPut, "/v1/students/s1/topics/A/progress",
		`{"status": "completed", "understanding_level": 4, "time_spent_hours": 3.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	rec := decode[planner.Progress](t, body)
	assert.Equal(t, planner.StatusCompleted, rec.Status)
	assert.Equal(t, "s1", rec.StudentID)

	p, ok, err := f.store.GetProgress(context.Background(), "s1", "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, p.Understanding)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"bad status", "/v1/students/s1/topics/A/progress", `{"status": "done"}`, http.StatusBadRequest},
		{"understanding too high", "/v1/students/s1/topics/A/progress", `{"status": "in_progress", "understanding_level": 6}`, http.StatusBadRequest},
		{"negative time", "/v1/students/s1/topics/A/progress", `{"status": "in_progress", "time_spent_hours": -1}`, http.StatusBadRequest},
		{"missing status", "/v1/students/s1/topics/A/progress", `{}`, http.StatusBadRequest},
		{"unknown topic", "/v1/students/s1/topics/Z/progress", `{"status": "in_progress"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}
}

func TestWorkload(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPut, "/v1/students/s1/topics/A/progress", `{"status": "completed", "time_spent_hours": 5}`)

	resp, body := f.do(t, http.MethodGet, "/v1/students/s1/workload", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[struct {
		Courses []planner.CourseWorkload `json:"courses"`
	}](t, body)
	require.Len(t, got.Courses, 1)
	assert.Equal(t, "Data Structures", got.Courses[0].CourseName)
	assert.Equal(t, 2, got.Courses[0].Topics)
	assert.Equal(t, 1, got.Courses[0].Completed)
	assert.InDelta(t, 6.0, got.Courses[0].TotalHours, 1e-9)
	assert.InDelta(t, 2.0, got.Courses[0].RemainingHours, 1e-9)
	assert.InDelta(t, 5.0, got.Courses[0].SpentHours, 1e-9)
}

func TestDependencies(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/v1/topics/B/dependencies", `{"prerequisite_topic_id": "A", "kind": "recommended"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = f.do(t, http.MethodGet, "/v1/topics/B/dependencies", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[struct {
		Dependencies []curriculum.Dependency `json:"dependencies"`
	}](t, body)
	require.Len(t, got.Dependencies, 1)
	assert.Equal(t, "Arrays", got.Dependencies[0].PrerequisiteName)
	assert.Equal(t, curriculum.KindRecommended, got.Dependencies[0].Kind)

	resp, body = f.do(t, http.MethodPost, "/v1/topics/B/dependencies", `{"prerequisite_topic_id": "A"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, curriculum.KindRequired, decode[curriculum.Dependency](t, body).Kind)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown prerequisite", "/v1/topics/B/dependencies", `{"prerequisite_topic_id": "Z"}`, http.StatusNotFound},
		{"self loop", "/v1/topics/B/dependencies", `{"prerequisite_topic_id": "B"}`, http.StatusBadRequest},
		{"bad kind", "/v1/topics/B/dependencies", `{"prerequisite_topic_id": "A", "kind": "optional"}`, http.StatusBadRequest},
		{"missing prerequisite", "/v1/topics/B/dependencies", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}

	resp, _ = f.do(t, http.MethodGet, "/v1/topics/Z/dependencies", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWorkbookExport(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet,
		"/v1/students/s1/courses/CS101/schedule.xlsx?hours_per_day=3&study_days=monday,wednesday&start_date=2024-03-04", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "schedule-s1-CS101.xlsx")

	wb, err := excelize.OpenReader(strings.NewReader(string(body)))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(export.SheetPath)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "A", rows[1][1])

	for _, hours := range []string{"lots", "NaN", "Inf", "-Inf"} {
		resp, _ = f.do(t, http.MethodGet, "/v1/students/s1/courses/CS101/schedule.xlsx?hours_per_day="+hours, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "hours_per_day=%s", hours)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/v1/students/s1/courses/CS101/priorities", "")

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `http_requests_total{endpoint="GET /v1/students/{student}/courses/{course}/priorities",method="GET",status="200"} 1`)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+"/v1/students/s1/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return f.hub.Subscribers("s1") == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, _ := f.do(t, http.MethodPut, "/v1/students/s1/topics/A/progress", `{"status": "in_progress"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var event planner.Event
	require.NoError(t, wsjson.Read(ctx, conn, &event))
	assert.Equal(t, planner.EventProgressRecorded, event.EventType)
	assert.Equal(t, "CS101", event.CourseID)
}
