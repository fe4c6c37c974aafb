package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/store"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

type fullStore interface {
	store.LessonStore
	store.EnrollmentStore
	store.ResultStore
}

func openSQLite(t *testing.T) (*store.SQLStore, *syncx.EventRepo) {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	events := syncx.NewEventRepo(dbh, "test")
	return store.NewSQLStore(dbh, db.DriverSQLite, events), events
}

func stores(t *testing.T) map[string]fullStore {
	sqlStore, _ := openSQLite(t)
	return map[string]fullStore{
		"memory": store.NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func sampleLesson(id, semester string, order int, published bool) lesson.Lesson {
	return lesson.Lesson{ID: id, SemesterID: semester, Title: id, Order: order, Published: published, Questions: []lesson.Question{
		{ID: "q2", Order: 2, Type: lesson.TypeFillBlank, Points: 5, AcceptableAnswers: []string{"Dhaka"}},
		{ID: "q1", Order: 1, Type: lesson.TypeMultipleChoice, Points: 10, Options: []lesson.Option{
			{ID: "A", Text: "a"}, {ID: "B", Text: "b", IsCorrect: true},
		}},
	}}
}

func sampleResult(student, lessonID string, score int) lesson.Result {
	return lesson.Result{
		ID: uuid.NewString(), StudentID: student, LessonID: lessonID, SemesterID: "S1",
		Score: score, TotalPoints: 15, Percentage: pct(score, 15), TimeSpentSeconds: 42,
		SubmittedAt: time.Now().UTC().Truncate(time.Millisecond),
		Answers:     []lesson.GradedAnswer{{QuestionID: "q1", Answered: true, Correct: true, EarnedPoints: 10, MaxPoints: 10}},
	}
}

func pct(score, total int) int { return score * 100 / total }

func TestLessonsRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.PutLesson(ctx, sampleLesson("L2", "S1", 2, true)); err != nil {
				t.Fatalf("put L2: %v", err)
			}
			if err := s.PutLesson(ctx, sampleLesson("L1", "S1", 1, true)); err != nil {
				t.Fatalf("put L1: %v", err)
			}
			if err := s.PutLesson(ctx, sampleLesson("L3", "S1", 3, false)); err != nil {
				t.Fatalf("put L3: %v", err)
			}

			got, err := s.GetLesson(ctx, "L1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.TotalPoints() != 15 || got.Questions[0].ID != "q1" {
				t.Fatalf("lesson = %+v", got)
			}
			if got.Questions[0].CorrectOption() != "B" {
				t.Fatal("answer key lost in storage")
			}

			pub, err := s.ListSemesterLessons(ctx, "S1", true)
			if err != nil || len(pub) != 2 || pub[0].ID != "L1" || pub[1].ID != "L2" {
				t.Fatalf("published = %v, err %v", pub, err)
			}
			all, _ := s.ListSemesterLessons(ctx, "S1", false)
			if len(all) != 3 {
				t.Fatalf("all = %d lessons", len(all))
			}

			if _, err := s.GetLesson(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("want ErrNotFound, got %v", err)
			}
		})
	}
}

func TestPutLessonRejectsInvalidQuestions(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := sampleLesson("L1", "S1", 1, true)
			l.Questions[0].AcceptableAnswers = nil
			if err := s.PutLesson(ctx, l); !errors.Is(err, apperr.ErrInvalidQuestionDefinition) {
				t.Fatalf("want ErrInvalidQuestionDefinition, got %v", err)
			}
			if _, err := s.GetLesson(ctx, "L1"); !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("invalid lesson was stored: %v", err)
			}
		})
	}
}

func TestEnrollment(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.PutSemester(ctx, lesson.Semester{ID: "S2", Title: "two", Order: 2, Active: true})
			_ = s.PutSemester(ctx, lesson.Semester{ID: "S1", Title: "one", Order: 1, Active: true})
			_ = s.PutSemester(ctx, lesson.Semester{ID: "S3", Title: "old", Order: 3, Active: false})

			if err := s.Enroll(ctx, "missing", "stu"); !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("enroll unknown semester: %v", err)
			}
			for _, sem := range []string{"S2", "S1", "S3"} {
				if err := s.Enroll(ctx, sem, "stu", "other"); err != nil {
					t.Fatalf("enroll %s: %v", sem, err)
				}
			}
			sems, err := s.StudentSemesters(ctx, "stu")
			if err != nil || len(sems) != 2 || sems[0].ID != "S1" || sems[1].ID != "S2" {
				t.Fatalf("semesters = %v, err %v", sems, err)
			}

			if err := s.Unenroll(ctx, "S2", "stu"); err != nil {
				t.Fatalf("unenroll: %v", err)
			}
			if ok, _ := s.IsEnrolled(ctx, "stu", "S2"); ok {
				t.Fatal("still enrolled after unenroll")
			}
			if ok, _ := s.IsEnrolled(ctx, "stu", "S1"); !ok {
				t.Fatal("not enrolled in S1")
			}
			students, _ := s.SemesterStudents(ctx, "S2")
			if len(students) != 1 || students[0] != "other" {
				t.Fatalf("S2 students = %v", students)
			}
		})
	}
}

func TestCreateResultIsFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first := sampleResult("stu", "L1", 15)
			got, err := s.CreateResult(ctx, first)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if got.ID != first.ID {
				t.Fatalf("id = %s", got.ID)
			}

			second := sampleResult("stu", "L1", 0)
			got, err = s.CreateResult(ctx, second)
			if !errors.Is(err, apperr.ErrAlreadySubmitted) {
				t.Fatalf("want ErrAlreadySubmitted, got %v", err)
			}
			if got.ID != first.ID || got.Score != 15 {
				t.Fatalf("conflict returned %+v, want first result", got)
			}

			stored, err := s.GetResult(ctx, "stu", "L1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if stored.Score != 15 || !stored.SubmittedAt.Equal(first.SubmittedAt) || len(stored.Answers) != 1 {
				t.Fatalf("stored = %+v", stored)
			}

			if _, err := s.GetResult(ctx, "stu", "L2"); !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("want ErrNotFound, got %v", err)
			}
			list, err := s.ListResults(ctx, "stu", []string{"L1", "L2"})
			if err != nil || len(list) != 1 || list["L1"].ID != first.ID {
				t.Fatalf("list = %v, err %v", list, err)
			}
		})
	}
}

func TestConcurrentCreateResultLocksOnce(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const n = 16
			var wg sync.WaitGroup
			var mu sync.Mutex
			created, conflicts := 0, 0
			ids := map[string]bool{}
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					r, err := s.CreateResult(ctx, sampleResult("stu", "L1", i))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						created++
					case errors.Is(err, apperr.ErrAlreadySubmitted):
						conflicts++
					default:
						t.Errorf("create %d: %v", i, err)
					}
					ids[r.ID] = true
				}(i)
			}
			wg.Wait()
			if created != 1 || conflicts != n-1 {
				t.Fatalf("created=%d conflicts=%d", created, conflicts)
			}
			if len(ids) != 1 {
				t.Fatalf("callers saw %d distinct results", len(ids))
			}
		})
	}
}

func TestSQLStoreAppendsSubmittedEvent(t *testing.T) {
	ctx := context.Background()
	s, events := openSQLite(t)
	if _, err := s.CreateResult(ctx, sampleResult("stu", "L1", 10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = s.CreateResult(ctx, sampleResult("stu", "L1", 0))

	evs, err := events.List(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != syncx.TypeLessonSubmitted || evs[0].Key != "stu/L1" || evs[0].SiteID != "test" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestRedisResultStore(t *testing.T) {
	if os.Getenv("REDIS_INTEGRATION") != "1" {
		t.Skip("set REDIS_INTEGRATION=1 to run Redis integration tests")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	prefix := "it_" + uuid.NewString()
	s := store.NewRedisResultStore(rdb, prefix)
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = rdb.Del(ctx, keys...).Err()
		}
	})

	first := sampleResult("stu", "L1", 15)
	if _, err := s.CreateResult(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.CreateResult(ctx, sampleResult("stu", "L1", 0))
	if !errors.Is(err, apperr.ErrAlreadySubmitted) || got.ID != first.ID {
		t.Fatalf("second create = %+v, %v", got, err)
	}
	list, err := s.ListResults(ctx, "stu", []string{"L1", "L2"})
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, err %v", list, err)
	}
}
