package http

import (
	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/engine"
	"github.com/mind-engage/mindengage-lessons/internal/logger"
	"github.com/mind-engage/mindengage-lessons/internal/rbac"
	"github.com/mind-engage/mindengage-lessons/internal/store"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

type Deps struct {
	Engine      *engine.Engine
	Lessons     store.LessonStore
	Enrollments store.EnrollmentStore
	Events      *syncx.EventRepo // nil when results are not kept in SQL
	Auth        *auth.AuthService
	Log         *logger.Logger
	Shuffle     func([]string) // nil uses math/rand
}

// Mount registers the lesson API behind JWT auth and RBAC.
func Mount(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(rbac.Require(rbac.PermLessonView)).
			Get("/lessons/{lessonID}", GetLessonHandler(d.Engine, d.Lessons, d.Shuffle, log))
		pr.With(rbac.Require(rbac.PermLessonSubmit)).
			Post("/lessons/{lessonID}/submit", SubmitLessonHandler(d.Engine, log))
		pr.With(rbac.Require(rbac.PermProgressViewOwn)).
			Get("/lessons/{lessonID}/result", LessonResultHandler(d.Engine, log))
		pr.With(rbac.Require(rbac.PermProgressViewOwn)).
			Get("/lessons/{lessonID}/progress", LessonProgressHandler(d.Engine, log))
		pr.With(rbac.Require(rbac.PermProgressViewOwn)).
			Get("/me/progress", MyProgressHandler(d.Engine, log))

		pr.Route("/admin", func(ar chi.Router) {
			ar.With(rbac.Require(rbac.PermLessonAuthor)).
				Put("/lessons/{lessonID}", PutLessonHandler(d.Lessons, log))
			ar.With(rbac.Require(rbac.PermSemesterManage)).
				Put("/semesters/{semesterID}", PutSemesterHandler(d.Lessons, log))
			ar.With(rbac.Require(rbac.PermEnrollManage)).
				Post("/semesters/{semesterID}/enrollments", EnrollHandler(d.Enrollments, log))
			ar.With(rbac.Require(rbac.PermEnrollManage)).
				Delete("/semesters/{semesterID}/enrollments/{studentID}", UnenrollHandler(d.Enrollments, log))
			ar.With(rbac.Require(rbac.PermProgressViewAll)).
				Get("/semesters/{semesterID}/progress", SemesterReportHandler(d.Engine, log))
			if d.Events != nil {
				ar.With(rbac.Require(rbac.PermEventsRead)).
					Get("/events", EventsHandler(d.Events, log))
			}
		})
	})
}
