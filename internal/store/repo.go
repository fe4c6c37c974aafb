package store

import (
	"context"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

// LessonStore is the authoring side. Writes validate every question so a
// stored lesson is always gradable.
type LessonStore interface {
	PutSemester(ctx context.Context, s lesson.Semester) error
	GetSemester(ctx context.Context, id string) (lesson.Semester, error)
	PutLesson(ctx context.Context, l lesson.Lesson) error
	GetLesson(ctx context.Context, id string) (lesson.Lesson, error)
	// ListSemesterLessons returns lessons ordered by Order.
	ListSemesterLessons(ctx context.Context, semesterID string, publishedOnly bool) ([]lesson.Lesson, error)
}

type EnrollmentStore interface {
	Enroll(ctx context.Context, semesterID string, studentIDs ...string) error
	Unenroll(ctx context.Context, semesterID, studentID string) error
	IsEnrolled(ctx context.Context, studentID, semesterID string) (bool, error)
	// StudentSemesters returns the active semesters a student is actively enrolled in, ordered by Order.
	StudentSemesters(ctx context.Context, studentID string) ([]lesson.Semester, error)
	SemesterStudents(ctx context.Context, semesterID string) ([]string, error)
}

// ResultStore holds the only shared mutable state of the engine.
type ResultStore interface {
	// CreateResult inserts r unless a result for (r.StudentID, r.LessonID)
	// exists. The check and the insert are one atomic step; on conflict the
	// stored result is returned with apperr.ErrAlreadySubmitted.
	CreateResult(ctx context.Context, r lesson.Result) (lesson.Result, error)
	GetResult(ctx context.Context, studentID, lessonID string) (lesson.Result, error)
	// ListResults returns the results found for the given lessons keyed by lesson id.
	ListResults(ctx context.Context, studentID string, lessonIDs []string) (map[string]lesson.Result, error)
}
