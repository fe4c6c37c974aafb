package lesson

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
)

func invalid(q Question, format string, args ...any) error {
	return fmt.Errorf("question %q: %s: %w", q.ID, fmt.Sprintf(format, args...), apperr.ErrInvalidQuestionDefinition)
}

// Validate checks an authoring-time question definition. The scorer assumes
// every question it sees has passed this check.
func Validate(q Question) error {
	if strings.TrimSpace(q.ID) == "" {
		return invalid(q, "id required")
	}
	if q.Points <= 0 {
		return invalid(q, "points must be positive, got %d", q.Points)
	}
	switch q.Type {
	case TypeMultipleChoice:
		if len(q.Options) < 2 {
			return invalid(q, "need at least 2 options, got %d", len(q.Options))
		}
		seen := make(map[string]struct{}, len(q.Options))
		correct := 0
		for _, o := range q.Options {
			if o.ID == "" {
				return invalid(q, "option id required")
			}
			if _, dup := seen[o.ID]; dup {
				return invalid(q, "duplicate option id %q", o.ID)
			}
			seen[o.ID] = struct{}{}
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return invalid(q, "exactly one correct option required, got %d", correct)
		}
	case TypeFillBlank:
		if len(q.AcceptableAnswers) == 0 {
			return invalid(q, "no acceptable answers")
		}
	case TypeMatching:
		if len(q.LeftItems) == 0 {
			return invalid(q, "no left items")
		}
		seen := make(map[string]struct{}, len(q.LeftItems))
		for _, it := range q.LeftItems {
			if _, dup := seen[it.ID]; dup {
				return invalid(q, "duplicate left item %q", it.ID)
			}
			seen[it.ID] = struct{}{}
			if _, ok := q.CorrectMatches[it.ID]; !ok {
				return invalid(q, "left item %q has no correct right value", it.ID)
			}
		}
	default:
		return invalid(q, "unknown type %q", q.Type)
	}
	return nil
}

// ValidateLesson validates every question and rejects duplicate question ids.
func ValidateLesson(l Lesson) error {
	seen := make(map[string]struct{}, len(l.Questions))
	for _, q := range l.Questions {
		if err := Validate(q); err != nil {
			return fmt.Errorf("lesson %q: %w", l.ID, err)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("lesson %q: %w", l.ID, invalid(q, "duplicate question id"))
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// SortQuestions orders questions by Order, keeping authoring order for ties.
func SortQuestions(qs []Question) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
}

// StudentView strips answer keys so a lesson can be served to students.
// Matching right items are rebuilt from the correct mapping when the author
// left the display pool empty, then passed through shuffle.
func StudentView(l Lesson, shuffle func([]string)) Lesson {
	out := l
	out.Questions = make([]Question, len(l.Questions))
	for i, q := range l.Questions {
		sq := Question{ID: q.ID, Type: q.Type, Order: q.Order, Points: q.Points, Prompt: q.Prompt}
		switch q.Type {
		case TypeMultipleChoice:
			sq.Options = make([]Option, len(q.Options))
			for j, o := range q.Options {
				sq.Options[j] = Option{ID: o.ID, Text: o.Text}
			}
		case TypeMatching:
			sq.LeftItems = append([]MatchItem(nil), q.LeftItems...)
			right := append([]string(nil), q.RightItems...)
			if len(right) == 0 {
				for _, it := range q.LeftItems {
					right = append(right, q.CorrectMatches[it.ID])
				}
			}
			if shuffle != nil {
				shuffle(right)
			}
			sq.RightItems = right
		}
		out.Questions[i] = sq
	}
	return out
}
