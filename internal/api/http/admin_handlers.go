package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-lessons/internal/engine"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/logger"
	"github.com/mind-engage/mindengage-lessons/internal/store"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

type lessonSummary struct {
	lesson.Lesson
	TotalPoints int `json:"total_points"`
}

// PutLessonHandler creates or replaces a lesson. Every question is validated
// before anything is stored; the URL id wins over the body.
func PutLessonHandler(lessons store.LessonStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var l lesson.Lesson
		if err := decodeJSON(w, r, &l); err != nil {
			writeError(w, r, log, err)
			return
		}
		l.ID = chi.URLParam(r, "lessonID")
		if _, err := lessons.GetSemester(r.Context(), l.SemesterID); err != nil {
			writeError(w, r, log, err)
			return
		}
		if err := lessons.PutLesson(r.Context(), l); err != nil {
			writeError(w, r, log, err)
			return
		}
		stored, err := lessons.GetLesson(r.Context(), l.ID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		log.Info("lesson saved", "lesson_id", l.ID, "semester_id", l.SemesterID, "questions", len(l.Questions), "published", l.Published)
		writeJSON(w, http.StatusOK, lessonSummary{Lesson: stored, TotalPoints: stored.TotalPoints()})
	}
}

func PutSemesterHandler(lessons store.LessonStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s lesson.Semester
		if err := decodeJSON(w, r, &s); err != nil {
			writeError(w, r, log, err)
			return
		}
		s.ID = chi.URLParam(r, "semesterID")
		if err := lessons.PutSemester(r.Context(), s); err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func EnrollHandler(enrollments store.EnrollmentStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StudentIDs []string `json:"student_ids"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		if len(req.StudentIDs) == 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "student_ids required"})
			return
		}
		semesterID := chi.URLParam(r, "semesterID")
		if err := enrollments.Enroll(r.Context(), semesterID, req.StudentIDs...); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func UnenrollHandler(enrollments store.EnrollmentStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := enrollments.Unenroll(r.Context(), chi.URLParam(r, "semesterID"), chi.URLParam(r, "studentID")); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SemesterReportHandler(e *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := e.SemesterReport(r.Context(), chi.URLParam(r, "semesterID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// EventsHandler pages through the event log: GET /admin/events?after=N&limit=M.
func EventsHandler(events *syncx.EventRepo, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		evs, err := events.List(r.Context(), after, limit)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if evs == nil {
			evs = []syncx.Event{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": evs})
	}
}
