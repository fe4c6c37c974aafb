package progress

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-lessons/internal/grading"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/store"
)

// Service answers progress reads from committed results. It never locks;
// a view may trail an in-flight submission.
type Service struct {
	lessons     store.LessonStore
	enrollments store.EnrollmentStore
	results     store.ResultStore
}

func NewService(lessons store.LessonStore, enrollments store.EnrollmentStore, results store.ResultStore) *Service {
	return &Service{lessons: lessons, enrollments: enrollments, results: results}
}

func (s *Service) LessonProgress(ctx context.Context, studentID, lessonID string) (LessonProgress, error) {
	l, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return LessonProgress{}, err
	}
	got, err := s.results.ListResults(ctx, studentID, []string{lessonID})
	if err != nil {
		return LessonProgress{}, err
	}
	if r, ok := got[lessonID]; ok {
		return Lesson(l, &r), nil
	}
	return Lesson(l, nil), nil
}

// SemesterProgress covers the published lessons of one semester.
func (s *Service) SemesterProgress(ctx context.Context, studentID string, sem lesson.Semester) (SemesterProgress, error) {
	lessons, err := s.lessons.ListSemesterLessons(ctx, sem.ID, true)
	if err != nil {
		return SemesterProgress{}, err
	}
	results, err := s.results.ListResults(ctx, studentID, lessonIDs(lessons))
	if err != nil {
		return SemesterProgress{}, err
	}
	return Semester(sem, lessons, results), nil
}

// StudentProgress covers every active semester the student is enrolled in,
// in semester order.
func (s *Service) StudentProgress(ctx context.Context, studentID string) (StudentProgress, error) {
	sems, err := s.enrollments.StudentSemesters(ctx, studentID)
	if err != nil {
		return StudentProgress{}, err
	}
	out := make([]SemesterProgress, len(sems))
	eg, ctx := errgroup.WithContext(ctx)
	for i, sem := range sems {
		eg.Go(func() error {
			sp, err := s.SemesterProgress(ctx, studentID, sem)
			out[i] = sp
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return StudentProgress{}, err
	}
	return StudentProgress{Summary: Overall(out), Semesters: out}, nil
}

// RosterEntry is one enrolled student's standing in a semester.
// AveragePercent here is total score over total possible points, not a
// mean of lesson percentages.
type RosterEntry struct {
	StudentID        string  `json:"student_id"`
	CompletedLessons int     `json:"lessons_completed"`
	TotalLessons     int     `json:"total_lessons"`
	ProgressPercent  int     `json:"progress_percent"`
	TotalScore       int     `json:"total_score"`
	TotalPossible    int     `json:"total_possible"`
	AveragePercent   float64 `json:"average_percent"`
}

type SemesterReport struct {
	SemesterID    string        `json:"semester_id"`
	TotalStudents int           `json:"total_students"`
	TotalLessons  int           `json:"total_lessons"`
	Progress      []RosterEntry `json:"progress"`
}

// SemesterReport builds the staff roster for a semester's published lessons.
func (s *Service) SemesterReport(ctx context.Context, semesterID string) (SemesterReport, error) {
	if _, err := s.lessons.GetSemester(ctx, semesterID); err != nil {
		return SemesterReport{}, err
	}
	lessons, err := s.lessons.ListSemesterLessons(ctx, semesterID, true)
	if err != nil {
		return SemesterReport{}, err
	}
	students, err := s.enrollments.SemesterStudents(ctx, semesterID)
	if err != nil {
		return SemesterReport{}, err
	}
	ids := lessonIDs(lessons)
	rep := SemesterReport{SemesterID: semesterID, TotalLessons: len(lessons), Progress: make([]RosterEntry, 0, len(students))}
	for _, stu := range students {
		results, err := s.results.ListResults(ctx, stu, ids)
		if err != nil {
			return SemesterReport{}, err
		}
		rep.Progress = append(rep.Progress, Roster(stu, len(lessons), results))
	}
	rep.TotalStudents = len(rep.Progress)
	return rep, nil
}

func Roster(studentID string, totalLessons int, results map[string]lesson.Result) RosterEntry {
	e := RosterEntry{StudentID: studentID, TotalLessons: totalLessons, CompletedLessons: len(results)}
	for _, r := range results {
		e.TotalScore += r.Score
		e.TotalPossible += r.TotalPoints
	}
	e.ProgressPercent = grading.Percent(e.CompletedLessons, totalLessons)
	if e.TotalPossible > 0 {
		e.AveragePercent = round1(100 * float64(e.TotalScore) / float64(e.TotalPossible))
	}
	return e
}

func lessonIDs(ls []lesson.Lesson) []string {
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ID
	}
	return ids
}
