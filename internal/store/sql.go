package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

// SQLStore implements every store interface on sqlite or postgres. Queries
// use $n placeholders, which both drivers accept.
type SQLStore struct {
	db     *sql.DB
	driver db.Driver
	events *syncx.EventRepo
}

func NewSQLStore(dbh *sql.DB, driver db.Driver, events *syncx.EventRepo) *SQLStore {
	return &SQLStore{db: dbh, driver: driver, events: events}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) PutSemester(ctx context.Context, sem lesson.Semester) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO semesters (id,title,ord,active)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, ord=EXCLUDED.ord, active=EXCLUDED.active`,
		sem.ID, sem.Title, sem.Order, sem.Active)
	return err
}

func (s *SQLStore) GetSemester(ctx context.Context, id string) (lesson.Semester, error) {
	var sem lesson.Semester
	err := s.db.QueryRowContext(ctx, `SELECT id,title,ord,active FROM semesters WHERE id=$1`, id).
		Scan(&sem.ID, &sem.Title, &sem.Order, &sem.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return lesson.Semester{}, apperr.NotFoundf("semester %q", id)
	}
	return sem, err
}

func (s *SQLStore) PutLesson(ctx context.Context, l lesson.Lesson) error {
	if err := lesson.ValidateLesson(l); err != nil {
		return err
	}
	qs := append([]lesson.Question(nil), l.Questions...)
	lesson.SortQuestions(qs)
	qj, err := json.Marshal(qs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO lessons (id,semester_id,title,ord,published,questions_json,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET semester_id=EXCLUDED.semester_id, title=EXCLUDED.title, ord=EXCLUDED.ord,
			published=EXCLUDED.published, questions_json=EXCLUDED.questions_json, updated_at=EXCLUDED.updated_at`,
		l.ID, l.SemesterID, l.Title, l.Order, l.Published, string(qj), time.Now().Unix())
	return err
}

func scanLesson(row rowScanner) (lesson.Lesson, error) {
	var l lesson.Lesson
	var qjson string
	if err := row.Scan(&l.ID, &l.SemesterID, &l.Title, &l.Order, &l.Published, &qjson); err != nil {
		return lesson.Lesson{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &l.Questions); err != nil {
		return lesson.Lesson{}, fmt.Errorf("lesson %q: decode questions: %w", l.ID, err)
	}
	return l, nil
}

func (s *SQLStore) GetLesson(ctx context.Context, id string) (lesson.Lesson, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,semester_id,title,ord,published,questions_json FROM lessons WHERE id=$1`, id)
	l, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lesson.Lesson{}, apperr.NotFoundf("lesson %q", id)
	}
	return l, err
}

func (s *SQLStore) ListSemesterLessons(ctx context.Context, semesterID string, publishedOnly bool) ([]lesson.Lesson, error) {
	q := `SELECT id,semester_id,title,ord,published,questions_json FROM lessons WHERE semester_id=$1`
	if publishedOnly {
		q += ` AND published=$2`
	}
	q += ` ORDER BY ord, id`
	args := []any{semesterID}
	if publishedOnly {
		args = append(args, true)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]lesson.Lesson, 0)
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStore) Enroll(ctx context.Context, semesterID string, studentIDs ...string) error {
	if _, err := s.GetSemester(ctx, semesterID); err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := time.Now().Unix()
		for _, id := range studentIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO enrollments (student_id,semester_id,active,created_at)
				VALUES ($1,$2,$3,$4)
				ON CONFLICT (student_id, semester_id) DO UPDATE SET active=EXCLUDED.active`,
				id, semesterID, true, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Unenroll(ctx context.Context, semesterID, studentID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE enrollments SET active=$1 WHERE student_id=$2 AND semester_id=$3`,
		false, studentID, semesterID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("enrollment %s/%s", semesterID, studentID)
	}
	return nil
}

func (s *SQLStore) IsEnrolled(ctx context.Context, studentID, semesterID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `SELECT active FROM enrollments WHERE student_id=$1 AND semester_id=$2`,
		studentID, semesterID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func (s *SQLStore) StudentSemesters(ctx context.Context, studentID string) ([]lesson.Semester, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.id, s.title, s.ord, s.active
		FROM semesters s JOIN enrollments e ON e.semester_id = s.id
		WHERE e.student_id=$1 AND e.active=$2 AND s.active=$2
		ORDER BY s.ord, s.id`, studentID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]lesson.Semester, 0)
	for rows.Next() {
		var sem lesson.Semester
		if err := rows.Scan(&sem.ID, &sem.Title, &sem.Order, &sem.Active); err != nil {
			return nil, err
		}
		out = append(out, sem)
	}
	return out, rows.Err()
}

func (s *SQLStore) SemesterStudents(ctx context.Context, semesterID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT student_id FROM enrollments
		WHERE semester_id=$1 AND active=$2 ORDER BY student_id`, semesterID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const resultColumns = `id,student_id,lesson_id,semester_id,score,total_points,percentage,passed,time_spent_seconds,submitted_at,answers_json`

func scanResult(row rowScanner) (lesson.Result, error) {
	var r lesson.Result
	var submitted int64
	var ajson string
	if err := row.Scan(&r.ID, &r.StudentID, &r.LessonID, &r.SemesterID, &r.Score, &r.TotalPoints,
		&r.Percentage, &r.Passed, &r.TimeSpentSeconds, &submitted, &ajson); err != nil {
		return lesson.Result{}, err
	}
	r.SubmittedAt = time.UnixMilli(submitted).UTC()
	if ajson != "" {
		if err := json.Unmarshal([]byte(ajson), &r.Answers); err != nil {
			return lesson.Result{}, fmt.Errorf("result %q: decode answers: %w", r.ID, err)
		}
	}
	return r, nil
}

// CreateResult relies on the (student_id, lesson_id) primary key: the insert
// is a no-op when a row exists, and zero affected rows means the pair is
// already locked.
func (s *SQLStore) CreateResult(ctx context.Context, r lesson.Result) (lesson.Result, error) {
	ajson, err := json.Marshal(r.Answers)
	if err != nil {
		return lesson.Result{}, err
	}
	r.SubmittedAt = r.SubmittedAt.Truncate(time.Millisecond).UTC()

	var existing lesson.Result
	conflict := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO lesson_results (`+resultColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (student_id, lesson_id) DO NOTHING`,
			r.ID, r.StudentID, r.LessonID, r.SemesterID, r.Score, r.TotalPoints, r.Percentage, r.Passed,
			r.TimeSpentSeconds, r.SubmittedAt.UnixMilli(), string(ajson))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			conflict = true
			existing, err = scanResult(tx.QueryRowContext(ctx,
				`SELECT `+resultColumns+` FROM lesson_results WHERE student_id=$1 AND lesson_id=$2`,
				r.StudentID, r.LessonID))
			return err
		}
		if s.events == nil {
			return nil
		}
		ev, err := syncx.NewEvent(syncx.TypeLessonSubmitted, r.StudentID+"/"+r.LessonID, r)
		if err != nil {
			return err
		}
		return s.events.AppendWith(ctx, tx, ev)
	})
	if err != nil {
		return lesson.Result{}, err
	}
	if conflict {
		return existing, apperr.ErrAlreadySubmitted
	}
	return r, nil
}

func (s *SQLStore) GetResult(ctx context.Context, studentID, lessonID string) (lesson.Result, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM lesson_results WHERE student_id=$1 AND lesson_id=$2`, studentID, lessonID))
	if errors.Is(err, sql.ErrNoRows) {
		return lesson.Result{}, apperr.NotFoundf("result %s/%s", studentID, lessonID)
	}
	return r, err
}

func (s *SQLStore) ListResults(ctx context.Context, studentID string, lessonIDs []string) (map[string]lesson.Result, error) {
	want := make(map[string]struct{}, len(lessonIDs))
	for _, id := range lessonIDs {
		want[id] = struct{}{}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM lesson_results WHERE student_id=$1`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]lesson.Result, len(lessonIDs))
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		if _, ok := want[r.LessonID]; ok {
			out[r.LessonID] = r
		}
	}
	return out, rows.Err()
}
