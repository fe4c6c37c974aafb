package lesson

import "time"

type QuestionType string

const (
	TypeMultipleChoice QuestionType = "mcq"
	TypeFillBlank      QuestionType = "fill_blank"
	TypeMatching       QuestionType = "matching"
)

type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type MatchItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID     string       `json:"id"`
	Type   QuestionType `json:"type"`
	Order  int          `json:"order"`
	Points int          `json:"points"`
	Prompt string       `json:"prompt,omitempty"`

	Options []Option `json:"options,omitempty"` // mcq

	AcceptableAnswers []string `json:"acceptable_answers,omitempty"` // fill_blank

	LeftItems      []MatchItem       `json:"left_items,omitempty"`      // matching
	RightItems     []string          `json:"right_items,omitempty"`     // matching, display pool
	CorrectMatches map[string]string `json:"correct_matches,omitempty"` // left id -> right text
}

// CorrectOption returns the id of the option flagged correct, or "" if none.
func (q Question) CorrectOption() string {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.ID
		}
	}
	return ""
}

func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (q Question) HasLeftItem(id string) bool {
	for _, it := range q.LeftItems {
		if it.ID == id {
			return true
		}
	}
	return false
}

type Lesson struct {
	ID         string     `json:"id"`
	SemesterID string     `json:"semester_id"`
	Title      string     `json:"title"`
	Order      int        `json:"order"`
	Published  bool       `json:"published"`
	Questions  []Question `json:"questions"`
}

// TotalPoints is derived from the question set on every call.
func (l Lesson) TotalPoints() int {
	total := 0
	for _, q := range l.Questions {
		total += q.Points
	}
	return total
}

type Semester struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Order  int    `json:"order"`
	Active bool   `json:"active"`
}

// Submission is one student's one attempt at one lesson. Answers are the
// JSON-decoded payloads keyed by question id.
type Submission struct {
	StudentID        string         `json:"student_id"`
	LessonID         string         `json:"lesson_id"`
	Answers          map[string]any `json:"answers"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
	SubmittedAt      time.Time      `json:"submitted_at"`
}

type GradedAnswer struct {
	QuestionID   string  `json:"question_id"`
	Answered     bool    `json:"answered"`
	Correct      bool    `json:"correct"`
	EarnedPoints float64 `json:"earned_points"`
	MaxPoints    int     `json:"max_points"`
}

// Result is the immutable outcome of a submission; at most one exists per
// (StudentID, LessonID).
type Result struct {
	ID               string         `json:"id"`
	StudentID        string         `json:"student_id"`
	LessonID         string         `json:"lesson_id"`
	SemesterID       string         `json:"semester_id"`
	Score            int            `json:"score"`
	TotalPoints      int            `json:"total_points"`
	Percentage       int            `json:"percentage"`
	Passed           bool           `json:"passed"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
	SubmittedAt      time.Time      `json:"submitted_at"`
	Answers          []GradedAnswer `json:"answers,omitempty"`
}
