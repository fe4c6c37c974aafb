package http

import (
	"errors"
	"math/rand/v2"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	auth "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/engine"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/logger"
	"github.com/mind-engage/mindengage-lessons/internal/rbac"
	"github.com/mind-engage/mindengage-lessons/internal/store"
)

type submitRequest struct {
	Answers          map[string]any `json:"answers"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
}

type conflictBody struct {
	errorBody
	Result lesson.Result `json:"result"`
}

// SubmitLessonHandler answers 201 with the new result, or 409 carrying the
// result that was locked earlier.
func SubmitLessonHandler(e *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		if req.TimeSpentSeconds < 0 {
			req.TimeSpentSeconds = 0
		}
		student := auth.SubjectFromContext(r.Context())
		res, err := e.SubmitLesson(r.Context(), student, chi.URLParam(r, "lessonID"), req.Answers, req.TimeSpentSeconds)
		switch {
		case errors.Is(err, apperr.ErrAlreadySubmitted):
			writeJSON(w, http.StatusConflict, conflictBody{
				errorBody: errorBody{Error: "already_submitted", Message: "lesson already submitted"},
				Result:    res,
			})
		case err != nil:
			writeError(w, r, log, err)
		default:
			writeJSON(w, http.StatusCreated, res)
		}
	}
}

func LessonResultHandler(e *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := e.LessonResult(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "lessonID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func LessonProgressHandler(e *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := e.GetLessonProgress(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "lessonID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func MyProgressHandler(e *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := e.GetStudentProgress(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// GetLessonHandler serves the student view. Authors get the full lesson,
// answer keys and drafts included.
func GetLessonHandler(e *engine.Engine, lessons store.LessonStore, shuffle func([]string), log *logger.Logger) http.HandlerFunc {
	if shuffle == nil {
		shuffle = func(s []string) { rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] }) }
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "lessonID")
		if rbac.Allowed(r, rbac.PermLessonAuthor) {
			l, err := lessons.GetLesson(r.Context(), id)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			writeJSON(w, http.StatusOK, l)
			return
		}
		l, err := e.StudentLesson(r.Context(), auth.SubjectFromContext(r.Context()), id, shuffle)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}
