package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quizgate/quizgate/internal/audit"
	"github.com/quizgate/quizgate/internal/db"
	"github.com/quizgate/quizgate/internal/quiz"
)

const testPublicURL = "https://exam.test"

func newTestDB(t *testing.T) (*quiz.SQLStore, *sql.DB) {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return quiz.NewSQLStore(dbh, "sqlite"), dbh
}

func mustPutQuiz(t *testing.T, store *quiz.SQLStore, q quiz.Quiz, questions []quiz.Question) {
	t.Helper()
	if err := store.PutQuiz(context.Background(), q, questions); err != nil {
		t.Fatalf("put quiz: %v", err)
	}
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestQuizLaunchAnonymous(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{
		ID: "quiz-1", Title: "Algebra I", Description: "Midterm", Duration: 45,
		Status: quiz.StatusPublished,
		RequireSEB: true, SEBConfigKey: "secret-1", SEBQuitURL: "https://exam.test/done",
	}, nil)
	h := QuizLaunchHandler(quiz.NewAdmissionService(store, audit.NewEventRepo(dbh)), testPublicURL)

	rec := postJSON(t, h, "/quiz-launch", map[string]string{
		"quizId": "quiz-1", "studentName": "Ada", "studentEmail": "ada@example.com",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Error("success != true")
	}
	token, _ := body["accessToken"].(string)
	if token == "" {
		t.Fatal("anonymous launch must return an accessToken")
	}
	launch, _ := body["launchUrl"].(string)
	want := testPublicURL + "/quiz/quiz-1?token=" + token
	if launch != want {
		t.Errorf("launchUrl = %q, want %q", launch, want)
	}
	qz, _ := body["quiz"].(map[string]any)
	if qz["title"] != "Algebra I" || qz["requireSeb"] != true {
		t.Errorf("quiz block = %v", qz)
	}
	if qz["sebConfigKey"] != "secret-1" {
		t.Errorf("sebConfigKey = %v", qz["sebConfigKey"])
	}

	// Relaunching with the same identity resumes the attempt.
	again := postJSON(t, h, "/quiz-launch", map[string]string{
		"quizId": "quiz-1", "studentName": "Ada", "studentEmail": "ada@example.com",
	}, nil)
	if again.Code != http.StatusOK {
		t.Fatalf("relaunch status = %d", again.Code)
	}
	if got := decodeBody(t, again)["attemptId"]; got != body["attemptId"] {
		t.Errorf("relaunch attemptId = %v, want %v", got, body["attemptId"])
	}
}

func TestQuizLaunchAuthenticatedOmitsToken(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished}, nil)
	h := QuizLaunchHandler(quiz.NewAdmissionService(store, audit.NewEventRepo(dbh)), testPublicURL)

	rec := postJSON(t, h, "/quiz-launch", map[string]string{"quizId": "quiz-1", "userId": "u1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if _, present := body["accessToken"]; present {
		t.Error("accessToken must be omitted for authenticated launches")
	}
	if launch, _ := body["launchUrl"].(string); strings.Contains(launch, "token=") {
		t.Errorf("launchUrl %q must not carry a token", launch)
	}
}

func TestQuizLaunchNotFound(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{ID: "draft-1", Title: "T", Duration: 10, Status: quiz.StatusDraft}, nil)
	h := QuizLaunchHandler(quiz.NewAdmissionService(store, audit.NewEventRepo(dbh)), testPublicURL)

	for _, id := range []string{"missing", "draft-1"} {
		rec := postJSON(t, h, "/quiz-launch", map[string]string{"quizId": id, "userId": "u1"}, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("quiz %s: status = %d, want 404", id, rec.Code)
		}
		if body := decodeBody(t, rec); body["error"] != "Quiz not found or not published" {
			t.Errorf("quiz %s: error = %v", id, body["error"])
		}
	}
}

func TestQuizLaunchAlreadyCompleted(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished}, nil)
	adm := quiz.NewAdmissionService(store, audit.NewEventRepo(dbh))
	h := QuizLaunchHandler(adm, testPublicURL)

	a, _, err := adm.Admit(context.Background(), "quiz-1", quiz.Authenticated{UserID: "u1"})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := dbh.Exec(`UPDATE quiz_attempts SET status=$1 WHERE id=$2`, quiz.AttemptGraded, a.ID); err != nil {
		t.Fatalf("close attempt: %v", err)
	}

	rec := postJSON(t, h, "/quiz-launch", map[string]string{"quizId": "quiz-1", "userId": "u1"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "Multiple attempts not allowed" {
		t.Errorf("error = %v", body["error"])
	}
	if body["message"] != "You have already completed this quiz" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestQuizLaunchAttemptLimit(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{
		ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished,
		AllowMultipleAttempts: true, MaxAttempts: 1,
	}, nil)
	adm := quiz.NewAdmissionService(store, audit.NewEventRepo(dbh))
	h := QuizLaunchHandler(adm, testPublicURL)

	a, _, err := adm.Admit(context.Background(), "quiz-1", quiz.Authenticated{UserID: "u1"})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := dbh.Exec(`UPDATE quiz_attempts SET status=$1 WHERE id=$2`, quiz.AttemptSubmitted, a.ID); err != nil {
		t.Fatalf("close attempt: %v", err)
	}

	rec := postJSON(t, h, "/quiz-launch", map[string]string{"quizId": "quiz-1", "userId": "u1"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "Maximum attempts exceeded" {
		t.Errorf("error = %v", body["error"])
	}
	if body["message"] != "You have reached the maximum of 1 attempts for this quiz" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestQuizLaunchBadRequest(t *testing.T) {
	store, dbh := newTestDB(t)
	h := QuizLaunchHandler(quiz.NewAdmissionService(store, audit.NewEventRepo(dbh)), testPublicURL)

	// Missing quiz id.
	rec := postJSON(t, h, "/quiz-launch", map[string]string{"userId": "u1"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing quizId: status = %d, want 400", rec.Code)
	}
	// Name without email is not a usable identity.
	rec = postJSON(t, h, "/quiz-launch", map[string]string{"quizId": "q", "studentName": "Ada"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("partial identity: status = %d, want 400", rec.Code)
	}
}
