package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/progress"
	"github.com/mind-engage/mindengage-lessons/internal/store"
	"github.com/mind-engage/mindengage-lessons/internal/submission"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	_ = s.PutSemester(ctx, lesson.Semester{ID: "S1", Order: 1, Active: true})
	for i, id := range []string{"L1", "L2", "L3", "L4", "L5"} {
		err := s.PutLesson(ctx, lesson.Lesson{ID: id, SemesterID: "S1", Order: i + 1, Published: true, Questions: []lesson.Question{
			{ID: "q1", Type: lesson.TypeMultipleChoice, Points: 10, Options: []lesson.Option{{ID: "A"}, {ID: "B", IsCorrect: true}}},
			{ID: "q2", Type: lesson.TypeMatching, Points: 10, LeftItems: []lesson.MatchItem{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}},
				CorrectMatches: map[string]string{"a": "1", "b": "2", "c": "3", "d": "4", "e": "5"}},
		}})
		if err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	if err := s.Enroll(ctx, "S1", "stu"); err != nil {
		t.Fatal(err)
	}
	return New(submission.New(s, s, s), progress.NewService(s, s, s), s, s)
}

func TestEngineSubmitThenProgress(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	// 10 + 6 of 20 = 80%.
	r, err := e.SubmitLesson(ctx, "stu", "L1", map[string]any{"q1": "B", "q2": map[string]any{"a": "1", "b": "2", "c": "3"}}, 120)
	if err != nil || r.Percentage != 80 {
		t.Fatalf("L1 = %+v, err %v", r, err)
	}
	// 0 + 10 of 20 = 50%, then a retry that must not count.
	if _, err := e.SubmitLesson(ctx, "stu", "L2", map[string]any{"q1": "A", "q2": map[string]any{"a": "1", "b": "2", "c": "3", "d": "4", "e": "5"}}, 60); err != nil {
		t.Fatal(err)
	}
	again, err := e.SubmitLesson(ctx, "stu", "L2", map[string]any{"q1": "B"}, 5)
	if !errors.Is(err, apperr.ErrAlreadySubmitted) || again.Percentage != 50 {
		t.Fatalf("retry = %+v, err %v", again, err)
	}

	lp, err := e.GetLessonProgress(ctx, "stu", "L2")
	if err != nil || !lp.IsCompleted || lp.Score != 10 || lp.TotalPoints != 20 {
		t.Fatalf("lesson progress = %+v, err %v", lp, err)
	}
	sp, err := e.GetStudentProgress(ctx, "stu")
	if err != nil {
		t.Fatal(err)
	}
	s1 := sp.Semesters[0]
	if s1.CompletedLessons != 2 || s1.TotalLessons != 5 || s1.ProgressPercent != 40 || s1.AveragePercent != 65 {
		t.Fatalf("semester = %+v", s1)
	}
	if sp.Summary.CompletedLessons != 2 || sp.Summary.OverallAverage != 65 {
		t.Fatalf("summary = %+v", sp.Summary)
	}
}

func TestStudentLesson(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	l, err := e.StudentLesson(ctx, "stu", "L1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if l.Questions[0].Options[1].IsCorrect || l.Questions[1].CorrectMatches != nil || len(l.Questions[1].RightItems) != 5 {
		t.Fatalf("keys leaked: %+v", l.Questions)
	}
	if _, err := e.StudentLesson(ctx, "stranger", "L1", nil); !errors.Is(err, apperr.ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled, got %v", err)
	}
}
