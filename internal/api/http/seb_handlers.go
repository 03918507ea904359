package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/quizgate/quizgate/internal/audit"
	"github.com/quizgate/quizgate/internal/quiz"
	"github.com/quizgate/quizgate/internal/seb"
)

// SEBValidateHandler verifies the lockdown-browser attestation for a
// quiz: POST /seb-validate with {quizId, requestUrl} plus the
// X-SafeExamBrowser-ConfigKeyHash header. Stateless; called on every
// sensitive exam request.
func SEBValidateHandler(store *quiz.SQLStore, events *audit.EventRepo, publicURL string) http.HandlerFunc {
	type out struct {
		Valid         bool   `json:"valid"`
		Message       string `json:"message,omitempty"`
		Error         string `json:"error,omitempty"`
		ValidatedWith string `json:"validated_with,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID     string `json:"quizId"`
			RequestURL string `json:"requestUrl"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, out{Valid: false, Error: "bad json"})
			return
		}

		q, err := store.GetQuiz(r.Context(), req.QuizID)
		if errors.Is(err, quiz.ErrQuizNotFound) {
			writeJSON(w, http.StatusNotFound, out{Valid: false, Error: "Quiz not found"})
			return
		}
		if err != nil {
			log.Printf("seb-validate: quiz %s: %v", req.QuizID, err)
			writeJSON(w, http.StatusInternalServerError, out{
				Valid: false, Error: "Internal server error", Message: "Failed to validate SEB session",
			})
			return
		}

		requestURL := req.RequestURL
		if requestURL == "" {
			requestURL = publicURL + "/quiz/" + q.ID
		}

		v := seb.Validate(seb.Policy{
			RequireSEB:     q.RequireSEB,
			ConfigKey:      q.SEBConfigKey,
			BrowserExamKey: q.SEBBrowserExamKey,
		}, r.Header.Get(seb.HeaderConfigKeyHash), requestURL)

		if v.Valid {
			if v.MatchedWith != "" {
				events.Record(r.Context(), audit.TypeSEBValidationOK, q.ID, map[string]any{
					"validated_with": v.MatchedWith,
					"request_url":    requestURL,
				})
				writeJSON(w, http.StatusOK, out{
					Valid: true, Message: "SEB validation successful", ValidatedWith: v.MatchedWith,
				})
				return
			}
			writeJSON(w, http.StatusOK, out{Valid: true, Message: "SEB not required for this quiz"})
			return
		}

		// Hash metadata goes to the audit log only; responses never carry
		// expected values derived from the secrets.
		events.Record(r.Context(), audit.TypeSEBValidationFailed, q.ID, map[string]any{
			"reason":        v.Reason,
			"request_url":   requestURL,
			"received_hash": v.ReceivedHash,
			"expected_hash": v.ExpectedHash,
		})

		switch v.Reason {
		case seb.ReasonHeaderMissing:
			writeJSON(w, http.StatusForbidden, out{
				Valid: false, Error: "SEB header missing",
				Message: "Safe Exam Browser is required for this quiz",
			})
		case seb.ReasonConfigMissing:
			writeJSON(w, http.StatusInternalServerError, out{
				Valid: false, Error: "Quiz SEB configuration missing",
			})
		default:
			writeJSON(w, http.StatusForbidden, out{
				Valid: false, Error: "SEB validation failed",
				Message: "Invalid Safe Exam Browser configuration. Please ensure you are using the correct .seb file.",
			})
		}
	}
}
