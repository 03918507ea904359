package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/quizgate/quizgate/internal/auth/middleware"
	"github.com/quizgate/quizgate/internal/quiz"
	"github.com/quizgate/quizgate/internal/rbac"
)

// attemptAuthorized checks that the caller owns the attempt: anonymous
// clients present the access token (?token= or X-Access-Token),
// authenticated clients must be the attempt's user. Graders with
// attempt:view-all pass regardless.
func attemptAuthorized(r *http.Request, a quiz.Attempt) bool {
	if role := rbac.RoleFromContext(r.Context()); role != "" {
		if rbac.NewChecker(nil).Has(role, "attempt:view-all") {
			return true
		}
	}
	if a.AccessToken != "" {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			tok = r.Header.Get("X-Access-Token")
		}
		return tok != "" &&
			subtle.ConstantTimeCompare([]byte(tok), []byte(a.AccessToken)) == 1
	}
	return a.UserID != "" && auth.SubjectFromContext(r.Context()) == a.UserID
}

// SaveAnswersHandler upserts answer texts while the attempt is open:
// PUT /attempts/{attemptID}/answers with {"answers": {questionID: text}}.
func SaveAnswersHandler(store *quiz.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		var req struct {
			Answers map[string]string `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json", "")
			return
		}
		a, err := store.GetAttempt(r.Context(), id)
		if errors.Is(err, quiz.ErrAttemptNotFound) {
			writeError(w, http.StatusNotFound, "Attempt not found", "")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		if !attemptAuthorized(r, a) {
			writeError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		if err := store.SaveAnswers(r.Context(), id, req.Answers); err != nil {
			if errors.Is(err, quiz.ErrAttemptClosed) {
				writeError(w, http.StatusConflict, "Attempt no longer in progress", "")
				return
			}
			log.Printf("save answers: attempt %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"saved": len(req.Answers)})
	}
}

// SubmitAttemptHandler finalizes and grades an attempt:
// POST /attempts/{attemptID}/submit. The countdown-expiry path and the
// student-submit path both land here; elapsed time is server-observed.
func SubmitAttemptHandler(store *quiz.SQLStore, grader *quiz.GradeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		a, err := store.GetAttempt(r.Context(), id)
		if errors.Is(err, quiz.ErrAttemptNotFound) {
			writeError(w, http.StatusNotFound, "Attempt not found", "")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		if !attemptAuthorized(r, a) {
			writeError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		res, err := grader.Grade(r.Context(), id)
		if err != nil {
			log.Printf("grade: attempt %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Internal server error",
				"Failed to grade attempt")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GetAttemptHandler returns the attempt record (scores only once graded).
func GetAttemptHandler(store *quiz.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		a, err := store.GetAttempt(r.Context(), id)
		if errors.Is(err, quiz.ErrAttemptNotFound) {
			writeError(w, http.StatusNotFound, "Attempt not found", "")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		if !attemptAuthorized(r, a) {
			writeError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GetResultsHandler returns per-question results for a graded attempt:
// GET /attempts/{attemptID}/results. Students only see them when the
// quiz shows results immediately; graders always can.
func GetResultsHandler(store *quiz.SQLStore) http.HandlerFunc {
	type out struct {
		Attempt quiz.Attempt  `json:"attempt"`
		Answers []quiz.Answer `json:"answers"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		a, err := store.GetAttempt(r.Context(), id)
		if errors.Is(err, quiz.ErrAttemptNotFound) {
			writeError(w, http.StatusNotFound, "Attempt not found", "")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		if !attemptAuthorized(r, a) {
			writeError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		if a.Status != quiz.AttemptGraded {
			writeError(w, http.StatusConflict, "Attempt not graded yet", "")
			return
		}

		role := rbac.RoleFromContext(r.Context())
		isGrader := role != "" && rbac.NewChecker(nil).Has(role, "attempt:view-all")
		if !isGrader {
			q, err := store.GetQuiz(r.Context(), a.QuizID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Internal server error", "")
				return
			}
			if !q.ShowResultsImmediately {
				writeError(w, http.StatusForbidden, "Results not available",
					"Results for this quiz are released by the instructor")
				return
			}
		}

		answers, err := store.ListAnswers(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		writeJSON(w, http.StatusOK, out{Attempt: a, Answers: answers})
	}
}

// ListAttemptsHandler lists a quiz's attempts for instructor dashboards:
// GET /quizzes/{quizID}/attempts.
func ListAttemptsHandler(store *quiz.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		attempts, err := store.ListAttempts(r.Context(), quizID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		// Access tokens are capabilities; never expose them in listings.
		for i := range attempts {
			attempts[i].AccessToken = ""
		}
		writeJSON(w, http.StatusOK, attempts)
	}
}
