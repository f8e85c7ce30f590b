package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/export"
	"github.com/p-n-ai/pai-planner/internal/planner"
)

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	path, err := s.planner.LearningPath(r.Context(),
		r.PathValue("student"), r.PathValue("course"), r.URL.Query().Get("start_date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

func (s *Server) handlePriorities(w http.ResponseWriter, r *http.Request) {
	priorities, err := s.planner.Priorities(r.Context(), r.PathValue("student"), r.PathValue("course"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"priorities": priorities})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req planner.ScheduleRequest
	if err := decodeBody(w, r, scheduleRequestSchema, &req); err != nil {
		writeError(w, err)
		return
	}

	plan, err := s.planner.PreviewSchedule(r.Context(), r.PathValue("student"), r.PathValue("course"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("student")
	if !s.commits.Allow(studentID) {
		slog.Warn("schedule commit rate limited", "student_id", studentID)
		writeJSON(w, http.StatusTooManyRequests, errorBody("too many requests"))
		return
	}

	var req planner.ScheduleRequest
	if err := decodeBody(w, r, scheduleRequestSchema, &req); err != nil {
		writeError(w, err)
		return
	}

	plan, err := s.planner.CommitSchedule(r.Context(), studentID, r.PathValue("course"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleWorkbook(w http.ResponseWriter, r *http.Request) {
	studentID, courseID := r.PathValue("student"), r.PathValue("course")

	req, err := scheduleRequestFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	plan, err := s.planner.PreviewSchedule(r.Context(), studentID, courseID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	path, err := s.planner.LearningPath(r.Context(), studentID, courseID, plan.StartDate.String())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="schedule-%s-%s.xlsx"`, safeFilePart(studentID), safeFilePart(courseID)))
	if err := export.WriteWorkbook(w, plan, path); err != nil {
		slog.Error("failed to write workbook", "student_id", studentID, "course_id", courseID, "error", err)
	}
}

func (s *Server) handleStoredSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.planner.StoredSchedule(r.Context(), r.PathValue("student"), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type progressRequest struct {
	Status         planner.Status `json:"status"`
	Understanding  int            `json:"understanding_level"`
	TimeSpentHours float64        `json:"time_spent_hours"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeBody(w, r, progressSchema, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.planner.RecordProgress(r.Context(), planner.Progress{
		StudentID:      r.PathValue("student"),
		TopicID:        r.PathValue("topic"),
		Status:         req.Status,
		Understanding:  req.Understanding,
		TimeSpentHours: req.TimeSpentHours,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleWorkload(w http.ResponseWriter, r *http.Request) {
	courses, err := s.planner.Workload(r.Context(), r.PathValue("student"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeStudent(w, r, r.PathValue("student"))
}

type dependencyRequest struct {
	PrerequisiteID string                    `json:"prerequisite_topic_id"`
	Kind           curriculum.DependencyKind `json:"kind"`
}

func (s *Server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	var req dependencyRequest
	if err := decodeBody(w, r, dependencySchema, &req); err != nil {
		writeError(w, err)
		return
	}

	dep := curriculum.Dependency{
		TopicID:        r.PathValue("topic"),
		PrerequisiteID: req.PrerequisiteID,
		Kind:           req.Kind,
	}
	if err := s.planner.AddDependency(r.Context(), dep); err != nil {
		writeError(w, err)
		return
	}
	if dep.Kind == "" {
		dep.Kind = curriculum.KindRequired
	}
	writeJSON(w, http.StatusCreated, dep)
}

func (s *Server) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	deps, err := s.planner.ListDependencies(r.Context(), r.PathValue("topic"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dependencies": deps})
}

// scheduleRequestFromQuery reads allocation options from query parameters.
// study_days is comma separated.
func scheduleRequestFromQuery(r *http.Request) (planner.ScheduleRequest, error) {
	q := r.URL.Query()
	req := planner.ScheduleRequest{StartDate: q.Get("start_date")}

	if v := q.Get("hours_per_day"); v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return planner.ScheduleRequest{}, fmt.Errorf("%w: %q", planner.ErrInvalidHoursPerDay, v)
		}
		req.HoursPerDay = &hours
	}
	if v := q.Get("study_days"); v != "" {
		for _, day := range strings.Split(v, ",") {
			if day = strings.TrimSpace(day); day != "" {
				req.StudyDays = append(req.StudyDays, day)
			}
		}
	}
	return req, nil
}

func safeFilePart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
