package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidQuestionDefinition = errors.New("invalid question definition")
	ErrMalformedAnswer           = errors.New("malformed answer")
	ErrAlreadySubmitted          = errors.New("lesson already submitted")
	ErrNotFound                  = errors.New("not found")
	ErrNotEnrolled               = errors.New("student not enrolled in semester")
	ErrForbidden                 = errors.New("forbidden")
)

// Error carries an HTTP status and a stable machine-readable code next to the
// wrapped domain error.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// NotFoundf wraps ErrNotFound with a formatted subject, e.g. NotFoundf("lesson %q", id).
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Classify maps err onto the engine's taxonomy.
func Classify(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadySubmitted):
		return New(http.StatusConflict, "already_submitted", err)
	case errors.Is(err, ErrMalformedAnswer):
		return New(http.StatusUnprocessableEntity, "malformed_answer", err)
	case errors.Is(err, ErrInvalidQuestionDefinition):
		return New(http.StatusUnprocessableEntity, "invalid_question_definition", err)
	case errors.Is(err, ErrNotFound):
		return New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrNotEnrolled):
		return New(http.StatusForbidden, "not_enrolled", err)
	case errors.Is(err, ErrForbidden):
		return New(http.StatusForbidden, "forbidden", err)
	default:
		return New(http.StatusInternalServerError, "internal", err)
	}
}

func Status(err error) int {
	if ae := Classify(err); ae != nil {
		return ae.Status
	}
	return http.StatusOK
}
