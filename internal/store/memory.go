package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

type resultKey struct{ student, lesson string }

type enrollKey struct{ student, semester string }

// MemoryStore implements every store interface in process. It is used for
// offline mode and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	semesters   map[string]lesson.Semester
	lessons     map[string]lesson.Lesson
	enrollments map[enrollKey]bool
	results     map[resultKey]lesson.Result
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		semesters:   map[string]lesson.Semester{},
		lessons:     map[string]lesson.Lesson{},
		enrollments: map[enrollKey]bool{},
		results:     map[resultKey]lesson.Result{},
	}
}

func (m *MemoryStore) PutSemester(_ context.Context, s lesson.Semester) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.semesters[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSemester(_ context.Context, id string) (lesson.Semester, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.semesters[id]
	if !ok {
		return lesson.Semester{}, apperr.NotFoundf("semester %q", id)
	}
	return s, nil
}

func (m *MemoryStore) PutLesson(_ context.Context, l lesson.Lesson) error {
	if err := lesson.ValidateLesson(l); err != nil {
		return err
	}
	l.Questions = append([]lesson.Question(nil), l.Questions...)
	lesson.SortQuestions(l.Questions)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lessons[l.ID] = l
	return nil
}

func (m *MemoryStore) GetLesson(_ context.Context, id string) (lesson.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lessons[id]
	if !ok {
		return lesson.Lesson{}, apperr.NotFoundf("lesson %q", id)
	}
	l.Questions = append([]lesson.Question(nil), l.Questions...)
	return l, nil
}

func (m *MemoryStore) ListSemesterLessons(_ context.Context, semesterID string, publishedOnly bool) ([]lesson.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]lesson.Lesson, 0)
	for _, l := range m.lessons {
		if l.SemesterID != semesterID || (publishedOnly && !l.Published) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Enroll(_ context.Context, semesterID string, studentIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.semesters[semesterID]; !ok {
		return apperr.NotFoundf("semester %q", semesterID)
	}
	for _, id := range studentIDs {
		m.enrollments[enrollKey{id, semesterID}] = true
	}
	return nil
}

func (m *MemoryStore) Unenroll(_ context.Context, semesterID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := enrollKey{studentID, semesterID}
	if _, ok := m.enrollments[k]; !ok {
		return apperr.NotFoundf("enrollment %s/%s", semesterID, studentID)
	}
	m.enrollments[k] = false
	return nil
}

func (m *MemoryStore) IsEnrolled(_ context.Context, studentID, semesterID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrollments[enrollKey{studentID, semesterID}], nil
}

func (m *MemoryStore) StudentSemesters(_ context.Context, studentID string) ([]lesson.Semester, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]lesson.Semester, 0)
	for k, active := range m.enrollments {
		if k.student != studentID || !active {
			continue
		}
		if s, ok := m.semesters[k.semester]; ok && s.Active {
			out = append(out, s)
		}
	}
	sortSemesters(out)
	return out, nil
}

func (m *MemoryStore) SemesterStudents(_ context.Context, semesterID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0)
	for k, active := range m.enrollments {
		if k.semester == semesterID && active {
			out = append(out, k.student)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) CreateResult(_ context.Context, r lesson.Result) (lesson.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := resultKey{r.StudentID, r.LessonID}
	if existing, ok := m.results[k]; ok {
		return existing, apperr.ErrAlreadySubmitted
	}
	r.Answers = append([]lesson.GradedAnswer(nil), r.Answers...)
	m.results[k] = r
	return r, nil
}

func (m *MemoryStore) GetResult(_ context.Context, studentID, lessonID string) (lesson.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[resultKey{studentID, lessonID}]
	if !ok {
		return lesson.Result{}, apperr.NotFoundf("result %s/%s", studentID, lessonID)
	}
	return r, nil
}

func (m *MemoryStore) ListResults(_ context.Context, studentID string, lessonIDs []string) (map[string]lesson.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]lesson.Result, len(lessonIDs))
	for _, id := range lessonIDs {
		if r, ok := m.results[resultKey{studentID, id}]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func sortSemesters(s []lesson.Semester) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Order != s[j].Order {
			return s[i].Order < s[j].Order
		}
		return s[i].ID < s[j].ID
	})
}
