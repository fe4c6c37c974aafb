package grading

import (
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

// Answer is a raw answer validated against its question's shape.
type Answer struct {
	Selected string            // mcq option id, "" for no selection
	Text     string            // fill_blank, trimmed and lower-cased
	Pairs    map[string]string // matching: recognized left id -> chosen right text
}

func malformed(q lesson.Question, format string, args ...any) error {
	return fmt.Errorf("question %q: %s: %w", q.ID, fmt.Sprintf(format, args...), apperr.ErrMalformedAnswer)
}

// Normalize validates raw against q. A nil raw answer is a skipped question
// and never an error; only structurally wrong payloads fail.
func Normalize(q lesson.Question, raw any) (Answer, error) {
	switch q.Type {
	case lesson.TypeMultipleChoice:
		if raw == nil {
			return Answer{}, nil
		}
		s, ok := raw.(string)
		if !ok {
			return Answer{}, malformed(q, "mcq answer must be an option id, got %T", raw)
		}
		if s == "" {
			return Answer{}, nil
		}
		if !q.HasOption(s) {
			return Answer{}, malformed(q, "unknown option %q", s)
		}
		return Answer{Selected: s}, nil

	case lesson.TypeFillBlank:
		if raw == nil {
			return Answer{}, nil
		}
		s, ok := raw.(string)
		if !ok {
			return Answer{}, malformed(q, "fill_blank answer must be text, got %T", raw)
		}
		return Answer{Text: normalizeText(s)}, nil

	case lesson.TypeMatching:
		if raw == nil {
			return Answer{Pairs: map[string]string{}}, nil
		}
		pairs := map[string]string{}
		switch m := raw.(type) {
		case map[string]string:
			for k, v := range m {
				if q.HasLeftItem(k) {
					pairs[k] = v
				}
			}
		case map[string]any:
			for k, v := range m {
				if !q.HasLeftItem(k) {
					continue
				}
				if v == nil {
					continue
				}
				s, ok := v.(string)
				if !ok {
					return Answer{}, malformed(q, "matching value for %q must be text, got %T", k, v)
				}
				pairs[k] = s
			}
		default:
			return Answer{}, malformed(q, "matching answer must be an object, got %T", raw)
		}
		return Answer{Pairs: pairs}, nil

	default:
		return Answer{}, fmt.Errorf("question %q: unknown type %q: %w", q.ID, q.Type, apperr.ErrInvalidQuestionDefinition)
	}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
