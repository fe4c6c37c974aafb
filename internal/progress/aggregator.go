package progress

import (
	"math"
	"time"

	"github.com/mind-engage/mindengage-lessons/internal/grading"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

// LessonProgress is the completion view of one lesson for one student.
// Score fields are zero unless IsCompleted.
type LessonProgress struct {
	LessonID    string     `json:"lesson_id"`
	Title       string     `json:"title,omitempty"`
	Order       int        `json:"order"`
	IsCompleted bool       `json:"is_completed"`
	Score       int        `json:"score"`
	TotalPoints int        `json:"total_points"`
	Percentage  int        `json:"percentage"`
	Passed      bool       `json:"passed"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type SemesterProgress struct {
	SemesterID       string           `json:"semester_id"`
	Title            string           `json:"title,omitempty"`
	Order            int              `json:"order"`
	CompletedLessons int              `json:"completed_lessons"`
	TotalLessons     int              `json:"total_lessons"`
	ProgressPercent  int              `json:"progress_percent"`
	AveragePercent   float64          `json:"average_percent"`
	Lessons          []LessonProgress `json:"lessons"`
}

type OverallProgress struct {
	TotalSemesters   int     `json:"total_semesters"`
	TotalLessons     int     `json:"total_lessons"`
	CompletedLessons int     `json:"completed_lessons"`
	OverallProgress  int     `json:"overall_progress"`
	OverallAverage   float64 `json:"overall_average"`
}

type StudentProgress struct {
	Summary   OverallProgress    `json:"summary"`
	Semesters []SemesterProgress `json:"semesters"`
}

// Lesson folds an optional result into the lesson's progress view.
func Lesson(l lesson.Lesson, r *lesson.Result) LessonProgress {
	p := LessonProgress{LessonID: l.ID, Title: l.Title, Order: l.Order}
	if r == nil {
		return p
	}
	at := r.SubmittedAt
	p.IsCompleted = true
	p.Score = r.Score
	p.TotalPoints = r.TotalPoints
	p.Percentage = r.Percentage
	p.Passed = r.Passed
	p.SubmittedAt = &at
	return p
}

// Semester rolls up the ordered lessons of s. AveragePercent is the mean
// percentage over completed lessons only and 0 when none are completed.
func Semester(s lesson.Semester, lessons []lesson.Lesson, results map[string]lesson.Result) SemesterProgress {
	sp := SemesterProgress{
		SemesterID:   s.ID,
		Title:        s.Title,
		Order:        s.Order,
		TotalLessons: len(lessons),
		Lessons:      make([]LessonProgress, 0, len(lessons)),
	}
	sum := 0
	for _, l := range lessons {
		var rp *lesson.Result
		if r, ok := results[l.ID]; ok {
			rp = &r
			sp.CompletedLessons++
			sum += r.Percentage
		}
		sp.Lessons = append(sp.Lessons, Lesson(l, rp))
	}
	sp.ProgressPercent = grading.Percent(sp.CompletedLessons, sp.TotalLessons)
	if sp.CompletedLessons > 0 {
		sp.AveragePercent = round1(float64(sum) / float64(sp.CompletedLessons))
	}
	return sp
}

// Overall sums lesson counts across semesters. OverallAverage weighs every
// semester with at least one completed lesson equally, regardless of how
// many lessons it holds.
func Overall(semesters []SemesterProgress) OverallProgress {
	o := OverallProgress{TotalSemesters: len(semesters)}
	sum, n := 0.0, 0
	for _, s := range semesters {
		o.TotalLessons += s.TotalLessons
		o.CompletedLessons += s.CompletedLessons
		if s.CompletedLessons > 0 {
			sum += s.AveragePercent
			n++
		}
	}
	o.OverallProgress = grading.Percent(o.CompletedLessons, o.TotalLessons)
	if n > 0 {
		o.OverallAverage = round1(sum / float64(n))
	}
	return o
}

// round1 rounds half up to one decimal place.
func round1(x float64) float64 {
	return math.Floor(x*10+0.5+1e-9) / 10
}
