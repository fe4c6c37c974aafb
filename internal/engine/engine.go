// Package engine is the entry point the surrounding application calls into:
// submit a lesson, read lesson progress, read a student's overall progress.
package engine

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/progress"
	"github.com/mind-engage/mindengage-lessons/internal/store"
	"github.com/mind-engage/mindengage-lessons/internal/submission"
)

type Engine struct {
	submissions *submission.Controller
	progress    *progress.Service
	lessons     store.LessonStore
	enrollments store.EnrollmentStore
}

func New(submissions *submission.Controller, progress *progress.Service, lessons store.LessonStore, enrollments store.EnrollmentStore) *Engine {
	return &Engine{submissions: submissions, progress: progress, lessons: lessons, enrollments: enrollments}
}

// SubmitLesson locks the (student, lesson) pair with a scored result. On a
// repeat submission the stored result is returned with
// apperr.ErrAlreadySubmitted.
func (e *Engine) SubmitLesson(ctx context.Context, studentID, lessonID string, answers map[string]any, timeSpentSeconds int) (lesson.Result, error) {
	return e.submissions.Submit(ctx, lesson.Submission{
		StudentID:        studentID,
		LessonID:         lessonID,
		Answers:          answers,
		TimeSpentSeconds: timeSpentSeconds,
	})
}

func (e *Engine) LessonResult(ctx context.Context, studentID, lessonID string) (lesson.Result, error) {
	return e.submissions.Result(ctx, studentID, lessonID)
}

func (e *Engine) GetLessonProgress(ctx context.Context, studentID, lessonID string) (progress.LessonProgress, error) {
	return e.progress.LessonProgress(ctx, studentID, lessonID)
}

func (e *Engine) GetStudentProgress(ctx context.Context, studentID string) (progress.StudentProgress, error) {
	return e.progress.StudentProgress(ctx, studentID)
}

func (e *Engine) SemesterReport(ctx context.Context, semesterID string) (progress.SemesterReport, error) {
	return e.progress.SemesterReport(ctx, semesterID)
}

// StudentLesson returns a published lesson with its answer keys removed.
// The student must be enrolled in the lesson's semester.
func (e *Engine) StudentLesson(ctx context.Context, studentID, lessonID string, shuffle func([]string)) (lesson.Lesson, error) {
	l, err := e.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return lesson.Lesson{}, err
	}
	if !l.Published {
		return lesson.Lesson{}, apperr.NotFoundf("lesson %q", lessonID)
	}
	ok, err := e.enrollments.IsEnrolled(ctx, studentID, l.SemesterID)
	if err != nil {
		return lesson.Lesson{}, err
	}
	if !ok {
		return lesson.Lesson{}, fmt.Errorf("student %q, semester %q: %w", studentID, l.SemesterID, apperr.ErrNotEnrolled)
	}
	return lesson.StudentView(l, shuffle), nil
}
