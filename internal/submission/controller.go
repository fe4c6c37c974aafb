package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/grading"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/logger"
	"github.com/mind-engage/mindengage-lessons/internal/metrics"
	"github.com/mind-engage/mindengage-lessons/internal/store"
	"github.com/mind-engage/mindengage-lessons/internal/tracing"
)

const DefaultPassPercent = 60

// Controller moves a (student, lesson) pair from Open to Locked exactly once.
type Controller struct {
	lessons     store.LessonStore
	enrollments store.EnrollmentStore
	results     store.ResultStore

	grader      grading.Grader
	log         *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	newID       func() string
	passPercent int
	parallel    bool
}

type Option func(*Controller)

func WithGrader(g grading.Grader) Option { return func(c *Controller) { c.grader = g } }

func WithLogger(l *logger.Logger) Option { return func(c *Controller) { c.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Controller) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

func WithIDs(newID func() string) Option { return func(c *Controller) { c.newID = newID } }

func WithPassPercent(p int) Option { return func(c *Controller) { c.passPercent = p } }

// WithParallelGrading grades questions concurrently. Scores are identical
// either way.
func WithParallelGrading(enabled bool) Option { return func(c *Controller) { c.parallel = enabled } }

// New builds a controller. enrollments may be nil, in which case every
// student may submit every lesson.
func New(lessons store.LessonStore, enrollments store.EnrollmentStore, results store.ResultStore, opts ...Option) *Controller {
	c := &Controller{
		lessons:     lessons,
		enrollments: enrollments,
		results:     results,
		grader:      grading.NewDefaultGrader(),
		log:         logger.Nop(),
		now:         time.Now,
		newID:       uuid.NewString,
		passPercent: DefaultPassPercent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Submit scores sub and locks the pair. If the pair is already locked the
// stored result is returned together with apperr.ErrAlreadySubmitted. Any
// other error leaves nothing persisted.
func (c *Controller) Submit(ctx context.Context, sub lesson.Submission) (res lesson.Result, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "submission.Submit")
	span.SetAttributes(
		attribute.String("student.id", sub.StudentID),
		attribute.String("lesson.id", sub.LessonID),
	)
	defer func() {
		outcome := outcomeOf(err)
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil && outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.metrics.ObserveSubmission(outcome)
	}()

	log := c.log.With("student_id", sub.StudentID, "lesson_id", sub.LessonID)

	l, err := c.lessons.GetLesson(ctx, sub.LessonID)
	if err != nil {
		return lesson.Result{}, err
	}
	if !l.Published {
		return lesson.Result{}, apperr.NotFoundf("lesson %q", sub.LessonID)
	}
	if c.enrollments != nil {
		ok, err := c.enrollments.IsEnrolled(ctx, sub.StudentID, l.SemesterID)
		if err != nil {
			return lesson.Result{}, err
		}
		if !ok {
			return lesson.Result{}, fmt.Errorf("student %q, semester %q: %w", sub.StudentID, l.SemesterID, apperr.ErrNotEnrolled)
		}
	}

	// Fast path only; CreateResult below is what actually holds the lock.
	if existing, err := c.results.GetResult(ctx, sub.StudentID, sub.LessonID); err == nil {
		log.Info("lesson already submitted", "result_id", existing.ID)
		return existing, apperr.ErrAlreadySubmitted
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return lesson.Result{}, err
	}

	if err := lesson.ValidateLesson(l); err != nil {
		log.Error("lesson failed validation at submit", "error", err)
		return lesson.Result{}, err
	}

	started := time.Now()
	graded, earned, err := Score(ctx, c.grader, l, sub.Answers, c.parallel)
	if err != nil {
		log.Warn("submission rejected", "error", err)
		return lesson.Result{}, err
	}
	gradeTime := time.Since(started)

	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = c.now()
	}
	total := l.TotalPoints()
	score := grading.Round(earned)
	if score > total {
		score = total
	}
	pct := grading.Percent(score, total)
	r := lesson.Result{
		ID:               c.newID(),
		StudentID:        sub.StudentID,
		LessonID:         sub.LessonID,
		SemesterID:       l.SemesterID,
		Score:            score,
		TotalPoints:      total,
		Percentage:       pct,
		Passed:           pct >= c.passPercent,
		TimeSpentSeconds: sub.TimeSpentSeconds,
		SubmittedAt:      submittedAt.UTC(),
		Answers:          graded,
	}

	stored, err := c.results.CreateResult(ctx, r)
	if errors.Is(err, apperr.ErrAlreadySubmitted) {
		log.Info("lost submit race, returning stored result", "result_id", stored.ID)
		return stored, err
	}
	if err != nil {
		log.Error("persist lesson result", "error", err)
		return lesson.Result{}, err
	}
	c.metrics.ObserveResult(stored.Percentage, gradeTime)
	log.Info("lesson submitted", "result_id", stored.ID, "score", stored.Score, "total", stored.TotalPoints, "percentage", stored.Percentage)
	return stored, nil
}

// Result reads the locked result for the pair.
func (c *Controller) Result(ctx context.Context, studentID, lessonID string) (lesson.Result, error) {
	return c.results.GetResult(ctx, studentID, lessonID)
}

// Score normalizes every answer before grading anything, so one malformed
// answer rejects the whole submission. Questions absent from answers score
// zero. The returned earned total is unrounded.
func Score(ctx context.Context, g grading.Grader, l lesson.Lesson, answers map[string]any, parallel bool) ([]lesson.GradedAnswer, float64, error) {
	normalized := make([]grading.Answer, len(l.Questions))
	for i, q := range l.Questions {
		a, err := grading.Normalize(q, answers[q.ID])
		if err != nil {
			return nil, 0, err
		}
		normalized[i] = a
	}

	results := make([]grading.Result, len(l.Questions))
	if parallel && len(l.Questions) > 1 {
		eg, _ := errgroup.WithContext(ctx)
		for i := range l.Questions {
			eg.Go(func() error {
				r, err := g.Grade(l.Questions[i], normalized[i])
				results[i] = r
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, 0, err
		}
	} else {
		for i, q := range l.Questions {
			r, err := g.Grade(q, normalized[i])
			if err != nil {
				return nil, 0, err
			}
			results[i] = r
		}
	}

	graded := make([]lesson.GradedAnswer, len(l.Questions))
	earned := 0.0
	for i, q := range l.Questions {
		earned += results[i].Earned
		graded[i] = lesson.GradedAnswer{
			QuestionID:   q.ID,
			Answered:     results[i].Answered,
			Correct:      results[i].Correct,
			EarnedPoints: results[i].Earned,
			MaxPoints:    q.Points,
		}
	}
	return graded, earned, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, apperr.ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, apperr.ErrMalformedAnswer):
		return "malformed"
	case errors.Is(err, apperr.ErrInvalidQuestionDefinition):
		return "invalid"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrNotEnrolled):
		return "not_enrolled"
	default:
		return "error"
	}
}
