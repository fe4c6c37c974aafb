package grading

import (
	"fmt"
	"math"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

// Result is the outcome of grading a single question.
type Result struct {
	Earned   float64 // unrounded; lesson totals are rounded once
	Max      int
	Correct  bool // full credit
	Answered bool
}

// Strategy grades one question type. Implementations must be pure.
type Strategy interface {
	Grade(q lesson.Question, a Answer) Result
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q lesson.Question, a Answer) (Result, error)
}

type defaultGrader struct {
	strategies map[lesson.QuestionType]Strategy
}

func (g *defaultGrader) Grade(q lesson.Question, a Answer) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{Max: q.Points}, fmt.Errorf("question %q: no strategy for type %q: %w", q.ID, q.Type, apperr.ErrInvalidQuestionDefinition)
	}
	return s.Grade(q, a), nil
}

type Option func(*config)

type config struct {
	strategies map[lesson.QuestionType]Strategy
}

// WithStrategy installs or replaces the strategy for one question type.
func WithStrategy(t lesson.QuestionType, s Strategy) Option {
	return func(c *config) { c.strategies[t] = s }
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{
		strategies: map[lesson.QuestionType]Strategy{
			lesson.TypeMultipleChoice: mcqStrategy{},
			lesson.TypeFillBlank:      fillBlankStrategy{},
			lesson.TypeMatching:       matchingStrategy{},
		},
	}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{strategies: cfg.strategies}
}

// --- Strategies ---

// mcqStrategy is all-or-nothing.
type mcqStrategy struct{}

func (mcqStrategy) Grade(q lesson.Question, a Answer) Result {
	res := Result{Max: q.Points, Answered: a.Selected != ""}
	if res.Answered && a.Selected == q.CorrectOption() {
		res.Earned = float64(q.Points)
		res.Correct = true
	}
	return res
}

// fillBlankStrategy is all-or-nothing against any acceptable answer.
type fillBlankStrategy struct{}

func (fillBlankStrategy) Grade(q lesson.Question, a Answer) Result {
	res := Result{Max: q.Points, Answered: a.Text != ""}
	if !res.Answered {
		return res
	}
	for _, k := range q.AcceptableAnswers {
		if normalizeText(k) == a.Text {
			res.Earned = float64(q.Points)
			res.Correct = true
			return res
		}
	}
	return res
}

// matchingStrategy gives per-pair partial credit: every left item is worth
// points/len(LeftItems).
type matchingStrategy struct{}

func (matchingStrategy) Grade(q lesson.Question, a Answer) Result {
	res := Result{Max: q.Points, Answered: len(a.Pairs) > 0}
	n := len(q.LeftItems)
	if n == 0 {
		return res
	}
	hits := 0
	for _, it := range q.LeftItems {
		chosen, ok := a.Pairs[it.ID]
		if ok && chosen == q.CorrectMatches[it.ID] {
			hits++
		}
	}
	res.Earned = float64(q.Points) * float64(hits) / float64(n)
	res.Correct = hits == n
	return res
}

// Round rounds half up. The epsilon absorbs float drift from partial credit
// sums such as 10/3 * 3.
func Round(x float64) int {
	return int(math.Floor(x + 0.5 + 1e-9))
}

// Percent returns round(100*part/whole), or 0 when whole is not positive.
func Percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return Round(100 * float64(part) / float64(whole))
}
