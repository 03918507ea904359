package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/quizgate/quizgate/internal/audit"
	"github.com/quizgate/quizgate/internal/quiz"
	"github.com/quizgate/quizgate/internal/seb"
)

func sebHash(url, secret string) string {
	sum := sha256.Sum256([]byte(url + secret))
	return hex.EncodeToString(sum[:])
}

func TestSEBValidateSuccess(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{
		ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished,
		RequireSEB: true, SEBConfigKey: "secret-1",
	}, nil)
	events := audit.NewEventRepo(dbh)
	h := SEBValidateHandler(store, events, testPublicURL)

	url := "https://exam.test/quiz/quiz-1"
	rec := postJSON(t, h, "/seb-validate",
		map[string]string{"quizId": "quiz-1", "requestUrl": url},
		map[string]string{seb.HeaderConfigKeyHash: sebHash(url, "secret-1")})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["valid"] != true || body["validated_with"] != "config_key" {
		t.Fatalf("body = %v", body)
	}
	if body["message"] != "SEB validation successful" {
		t.Errorf("message = %v", body["message"])
	}

	evs, err := events.List(context.Background(), audit.TypeSEBValidationOK, 10)
	if err != nil || len(evs) != 1 {
		t.Fatalf("audit events = %v (err %v), want one success entry", evs, err)
	}
}

func TestSEBValidateBrowserExamKeyFallback(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{
		ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished,
		RequireSEB: true, SEBConfigKey: "secret-1", SEBBrowserExamKey: "secret-2",
	}, nil)
	h := SEBValidateHandler(store, audit.NewEventRepo(dbh), testPublicURL)

	url := "https://exam.test/quiz/quiz-1"
	rec := postJSON(t, h, "/seb-validate",
		map[string]string{"quizId": "quiz-1", "requestUrl": url},
		map[string]string{seb.HeaderConfigKeyHash: sebHash(url, "secret-2")})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["validated_with"] != "browser_exam_key" {
		t.Errorf("validated_with = %v", body["validated_with"])
	}
}

func TestSEBValidateMismatch(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{
		ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished,
		RequireSEB: true, SEBConfigKey: "secret-1",
	}, nil)
	events := audit.NewEventRepo(dbh)
	h := SEBValidateHandler(store, events, testPublicURL)

	url := "https://exam.test/quiz/quiz-1"
	rec := postJSON(t, h, "/seb-validate",
		map[string]string{"quizId": "quiz-1", "requestUrl": url},
		map[string]string{seb.HeaderConfigKeyHash: sebHash(url, "wrong-secret")})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["valid"] != false || body["error"] != "SEB validation failed" {
		t.Fatalf("body = %v", body)
	}
	// The response must not leak hash material; that stays in the audit log.
	for k := range body {
		if k == "expected_hash" || k == "received_hash" {
			t.Fatalf("response leaks %s", k)
		}
	}
	evs, err := events.List(context.Background(), audit.TypeSEBValidationFailed, 10)
	if err != nil || len(evs) != 1 {
		t.Fatalf("audit events = %v (err %v), want one failure entry", evs, err)
	}
}

func TestSEBValidateHeaderMissing(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{
		ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished,
		RequireSEB: true, SEBConfigKey: "secret-1",
	}, nil)
	h := SEBValidateHandler(store, audit.NewEventRepo(dbh), testPublicURL)

	rec := postJSON(t, h, "/seb-validate", map[string]string{"quizId": "quiz-1"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "SEB header missing" {
		t.Errorf("error = %v", body["error"])
	}
	if body["message"] != "Safe Exam Browser is required for this quiz" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestSEBValidateNotRequired(t *testing.T) {
	store, dbh := newTestDB(t)
	mustPutQuiz(t, store, quiz.Quiz{
		ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished,
	}, nil)
	h := SEBValidateHandler(store, audit.NewEventRepo(dbh), testPublicURL)

	rec := postJSON(t, h, "/seb-validate", map[string]string{"quizId": "quiz-1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["valid"] != true || body["message"] != "SEB not required for this quiz" {
		t.Fatalf("body = %v", body)
	}
	if _, present := body["validated_with"]; present {
		t.Error("validated_with must be omitted when no key was checked")
	}
}

func TestSEBValidateConfigMissing(t *testing.T) {
	store, dbh := newTestDB(t)
	// require_seb without a stored key is a server-side integrity problem.
	mustPutQuiz(t, store, quiz.Quiz{
		ID: "quiz-1", Title: "T", Duration: 10, Status: quiz.StatusPublished, RequireSEB: true,
	}, nil)
	h := SEBValidateHandler(store, audit.NewEventRepo(dbh), testPublicURL)

	rec := postJSON(t, h, "/seb-validate", map[string]string{"quizId": "quiz-1"},
		map[string]string{seb.HeaderConfigKeyHash: "deadbeef"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Quiz SEB configuration missing" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestSEBValidateQuizNotFound(t *testing.T) {
	store, dbh := newTestDB(t)
	h := SEBValidateHandler(store, audit.NewEventRepo(dbh), testPublicURL)

	rec := postJSON(t, h, "/seb-validate", map[string]string{"quizId": "missing"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Quiz not found" {
		t.Errorf("error = %v", body["error"])
	}
}
