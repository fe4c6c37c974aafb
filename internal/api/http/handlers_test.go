package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	auth "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/internal/engine"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/progress"
	"github.com/mind-engage/mindengage-lessons/internal/store"
	"github.com/mind-engage/mindengage-lessons/internal/submission"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

type testServer struct {
	t       *testing.T
	srv     *httptest.Server
	authSvc *auth.AuthService
}

type fullStore interface {
	store.LessonStore
	store.EnrollmentStore
	store.ResultStore
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, store.NewMemoryStore(), nil)
}

// newSQLiteServer runs the API on an in-memory sqlite database with the
// event feed mounted.
func newSQLiteServer(t *testing.T) *testServer {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	events := syncx.NewEventRepo(dbh, "site-a")
	return newTestServerWith(t, store.NewSQLStore(dbh, db.DriverSQLite, events), events)
}

func newTestServerWith(t *testing.T, s fullStore, events *syncx.EventRepo) *testServer {
	t.Helper()
	e := engine.New(submission.New(s, s, s), progress.NewService(s, s, s), s, s)
	a := auth.NewAuthService("test-secret")
	r := chi.NewRouter()
	Mount(r, Deps{Engine: e, Lessons: s, Enrollments: s, Events: events, Auth: a, Shuffle: func([]string) {}})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, authSvc: a}
}

func (ts *testServer) do(method, path, sub, role string, body any) (*http.Response, map[string]any) {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		ts.t.Fatal(err)
	}
	if sub != "" {
		tok, err := ts.authSvc.IssueJWT(sub, role)
		if err != nil {
			ts.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (ts *testServer) expect(method, path, sub, role string, body any, status int) map[string]any {
	ts.t.Helper()
	resp, out := ts.do(method, path, sub, role, body)
	if resp.StatusCode != status {
		ts.t.Fatalf("%s %s: status %d, want %d (body %v)", method, path, resp.StatusCode, status, out)
	}
	return out
}

func testLesson() lesson.Lesson {
	return lesson.Lesson{SemesterID: "S1", Title: "Capitals", Order: 1, Published: true, Questions: []lesson.Question{
		{ID: "q1", Type: lesson.TypeMultipleChoice, Order: 1, Points: 10, Options: []lesson.Option{
			{ID: "A", Text: "Paris"}, {ID: "B", Text: "Dhaka", IsCorrect: true},
		}},
		{ID: "q2", Type: lesson.TypeFillBlank, Order: 2, Points: 5, AcceptableAnswers: []string{"Dhaka"}},
		{ID: "q3", Type: lesson.TypeMatching, Order: 3, Points: 8, LeftItems: []lesson.MatchItem{
			{ID: "l1", Text: "one"}, {ID: "l2", Text: "two"}, {ID: "l3", Text: "three"}, {ID: "l4", Text: "four"},
		}, CorrectMatches: map[string]string{"l1": "ek", "l2": "dui", "l3": "tin", "l4": "char"}},
	}}
}

func seedSemester(ts *testServer) {
	ts.expect(http.MethodPut, "/admin/semesters/S1", "root", "admin", lesson.Semester{Title: "Semester 1", Order: 1, Active: true}, http.StatusOK)
	ts.expect(http.MethodPut, "/admin/lessons/L1", "teach", "teacher", testLesson(), http.StatusOK)
	ts.expect(http.MethodPost, "/admin/semesters/S1/enrollments", "teach", "teacher", map[string]any{"student_ids": []string{"stu"}}, http.StatusNoContent)
}

func TestSubmitFlow(t *testing.T) {
	ts := newTestServer(t)
	seedSemester(ts)

	submit := map[string]any{
		"answers": map[string]any{
			"q1": "B",
			"q2": "  DHAKA",
			"q3": map[string]any{"l1": "ek", "l2": "dui", "l3": "tin", "l4": "ek"},
		},
		"time_spent_seconds": 300,
	}
	created := ts.expect(http.MethodPost, "/lessons/L1/submit", "stu", "student", submit, http.StatusCreated)
	// 10 + 5 + 6 of 23.
	if created["score"] != float64(21) || created["total_points"] != float64(23) || created["percentage"] != float64(91) {
		t.Fatalf("created = %v", created)
	}

	conflict := ts.expect(http.MethodPost, "/lessons/L1/submit", "stu", "student", map[string]any{"answers": map[string]any{}}, http.StatusConflict)
	if conflict["error"] != "already_submitted" {
		t.Fatalf("conflict = %v", conflict)
	}
	if res, _ := conflict["result"].(map[string]any); res["id"] != created["id"] || res["score"] != float64(21) {
		t.Fatalf("conflict result = %v", conflict["result"])
	}

	got := ts.expect(http.MethodGet, "/lessons/L1/result", "stu", "student", nil, http.StatusOK)
	if got["id"] != created["id"] {
		t.Fatalf("result = %v", got)
	}
	lp := ts.expect(http.MethodGet, "/lessons/L1/progress", "stu", "student", nil, http.StatusOK)
	if lp["is_completed"] != true || lp["percentage"] != float64(91) {
		t.Fatalf("lesson progress = %v", lp)
	}
	me := ts.expect(http.MethodGet, "/me/progress", "stu", "student", nil, http.StatusOK)
	summary, _ := me["summary"].(map[string]any)
	if summary["completed_lessons"] != float64(1) || summary["overall_progress"] != float64(100) {
		t.Fatalf("summary = %v", summary)
	}

	rep := ts.expect(http.MethodGet, "/admin/semesters/S1/progress", "teach", "teacher", nil, http.StatusOK)
	if rep["total_students"] != float64(1) || rep["total_lessons"] != float64(1) {
		t.Fatalf("report = %v", rep)
	}
}

func TestSubmitErrors(t *testing.T) {
	ts := newTestServer(t)
	seedSemester(ts)

	tests := []struct {
		name   string
		path   string
		sub    string
		role   string
		body   any
		status int
		code   string
	}{
		{"malformed matching", "/lessons/L1/submit", "stu", "student", map[string]any{"answers": map[string]any{"q3": "ek"}}, http.StatusUnprocessableEntity, "malformed_answer"},
		{"unknown option", "/lessons/L1/submit", "stu", "student", map[string]any{"answers": map[string]any{"q1": "Z"}}, http.StatusUnprocessableEntity, "malformed_answer"},
		{"bad json", "/lessons/L1/submit", "stu", "student", "{", http.StatusBadRequest, "bad_request"},
		{"unknown lesson", "/lessons/nope/submit", "stu", "student", map[string]any{}, http.StatusNotFound, "not_found"},
		{"not enrolled", "/lessons/L1/submit", "other", "student", map[string]any{}, http.StatusForbidden, "not_enrolled"},
		{"teacher cannot submit", "/lessons/L1/submit", "teach", "teacher", map[string]any{}, http.StatusForbidden, "forbidden"},
		{"no token", "/lessons/L1/submit", "", "", map[string]any{}, http.StatusUnauthorized, "unauthorized"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sub := &testServer{t: t, srv: ts.srv, authSvc: ts.authSvc}
			out := sub.expect(http.MethodPost, tc.path, tc.sub, tc.role, tc.body, tc.status)
			if out["error"] != tc.code {
				t.Fatalf("error = %v, want %s", out["error"], tc.code)
			}
		})
	}
	// Rejected submissions leave the lesson open.
	ts.expect(http.MethodGet, "/lessons/L1/result", "stu", "student", nil, http.StatusNotFound)
	ts.expect(http.MethodPost, "/lessons/L1/submit", "stu", "student", map[string]any{"answers": map[string]any{"q1": "B"}}, http.StatusCreated)
}

func TestGetLessonHidesKeysFromStudents(t *testing.T) {
	ts := newTestServer(t)
	seedSemester(ts)

	_, raw := ts.do(http.MethodGet, "/lessons/L1", "stu", "student", nil)
	b, _ := json.Marshal(raw)
	for _, leak := range []string{"is_correct", "acceptable_answers", "correct_matches"} {
		if bytes.Contains(b, []byte(leak)) {
			t.Fatalf("student view leaks %s: %s", leak, b)
		}
	}
	qs, _ := raw["questions"].([]any)
	if len(qs) != 3 {
		t.Fatalf("questions = %v", raw["questions"])
	}
	if right, _ := qs[2].(map[string]any)["right_items"].([]any); len(right) != 4 {
		t.Fatalf("right items = %v", qs[2])
	}

	full := ts.expect(http.MethodGet, "/lessons/L1", "teach", "teacher", nil, http.StatusOK)
	fb, _ := json.Marshal(full)
	if !bytes.Contains(fb, []byte("correct_matches")) {
		t.Fatalf("author view lost keys: %s", fb)
	}
	ts.expect(http.MethodGet, "/lessons/L1", "other", "student", nil, http.StatusForbidden)
}

func TestAuthoringValidation(t *testing.T) {
	ts := newTestServer(t)
	seedSemester(ts)

	bad := testLesson()
	bad.Questions[0].Options[0].IsCorrect = true
	out := ts.expect(http.MethodPut, "/admin/lessons/L2", "teach", "teacher", bad, http.StatusUnprocessableEntity)
	if out["error"] != "invalid_question_definition" {
		t.Fatalf("out = %v", out)
	}
	orphan := testLesson()
	orphan.SemesterID = "missing"
	ts.expect(http.MethodPut, "/admin/lessons/L3", "teach", "teacher", orphan, http.StatusNotFound)
	ts.expect(http.MethodPut, "/admin/lessons/L4", "stu", "student", testLesson(), http.StatusForbidden)
	ts.expect(http.MethodPut, "/admin/semesters/S9", "teach", "teacher", lesson.Semester{Title: "x"}, http.StatusForbidden)

	saved := ts.expect(http.MethodPut, "/admin/lessons/L5", "teach", "teacher", testLesson(), http.StatusOK)
	if saved["total_points"] != float64(23) || saved["id"] != "L5" {
		t.Fatalf("saved = %v", saved)
	}
	ts.expect(http.MethodPost, "/admin/semesters/S1/enrollments", "teach", "teacher", map[string]any{}, http.StatusBadRequest)
	ts.expect(http.MethodDelete, "/admin/semesters/S1/enrollments/stu", "teach", "teacher", nil, http.StatusNoContent)
	ts.expect(http.MethodPost, "/lessons/L1/submit", "stu", "student", map[string]any{}, http.StatusForbidden)
}

func TestEventFeedOnSQLite(t *testing.T) {
	ts := newSQLiteServer(t)
	seedSemester(ts)

	ts.expect(http.MethodPost, "/lessons/L1/submit", "stu", "student", map[string]any{"answers": map[string]any{"q1": "B"}}, http.StatusCreated)
	ts.expect(http.MethodPost, "/lessons/L1/submit", "stu", "student", map[string]any{"answers": map[string]any{"q1": "A"}}, http.StatusConflict)

	ts.expect(http.MethodGet, "/admin/events", "teach", "teacher", nil, http.StatusForbidden)
	out := ts.expect(http.MethodGet, "/admin/events?after=0", "root", "admin", nil, http.StatusOK)
	evs, _ := out["events"].([]any)
	if len(evs) != 1 {
		t.Fatalf("events = %v", out["events"])
	}
	ev, _ := evs[0].(map[string]any)
	if ev["type"] != syncx.TypeLessonSubmitted || ev["key"] != "stu/L1" || ev["site_id"] != "site-a" {
		t.Fatalf("event = %v", ev)
	}
	after := fmt.Sprintf("/admin/events?after=%v", ev["seq"])
	if out := ts.expect(http.MethodGet, after, "root", "admin", nil, http.StatusOK); len(out["events"].([]any)) != 0 {
		t.Fatalf("events after last = %v", out["events"])
	}
}

func TestEventFeedAbsentWithoutSQL(t *testing.T) {
	ts := newTestServer(t)
	ts.expect(http.MethodGet, "/admin/events", "root", "admin", nil, http.StatusNotFound)
}
