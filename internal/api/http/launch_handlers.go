package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/quizgate/quizgate/internal/quiz"
)

// QuizLaunchHandler admits a student into a quiz: POST /quiz-launch.
// The quiz's access password, when set, must have been verified through
// the verify-password endpoint first; admission does not re-check it.
func QuizLaunchHandler(adm *quiz.AdmissionService, publicURL string) http.HandlerFunc {
	type quizOut struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		Duration     int    `json:"duration"`
		RequireSeb   bool   `json:"requireSeb"`
		SebConfigKey string `json:"sebConfigKey,omitempty"`
		SebQuitURL   string `json:"sebQuitUrl,omitempty"`
	}
	type out struct {
		Success     bool    `json:"success"`
		AttemptID   string  `json:"attemptId"`
		LaunchURL   string  `json:"launchUrl"`
		AccessToken string  `json:"accessToken,omitempty"`
		Quiz        quizOut `json:"quiz"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID       string `json:"quizId"`
			StudentName  string `json:"studentName"`
			StudentEmail string `json:"studentEmail"`
			UserID       string `json:"userId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json", "")
			return
		}
		if req.QuizID == "" {
			writeError(w, http.StatusBadRequest, "Quiz ID is required", "")
			return
		}

		var id quiz.Identity
		switch {
		case req.UserID != "":
			id = quiz.Authenticated{UserID: req.UserID}
		case req.StudentName != "" && req.StudentEmail != "":
			id = quiz.Anonymous{Name: req.StudentName, Email: req.StudentEmail}
		default:
			writeError(w, http.StatusBadRequest, "Identity required",
				"Provide a userId or a studentName and studentEmail")
			return
		}

		a, q, err := adm.Admit(r.Context(), req.QuizID, id)
		switch {
		case errors.Is(err, quiz.ErrQuizUnavailable):
			writeError(w, http.StatusNotFound, "Quiz not found or not published", "")
			return
		case errors.Is(err, quiz.ErrAlreadyCompleted):
			writeError(w, http.StatusForbidden, "Multiple attempts not allowed",
				"You have already completed this quiz")
			return
		case errors.Is(err, quiz.ErrAttemptLimitExceeded):
			writeError(w, http.StatusForbidden, "Maximum attempts exceeded",
				fmt.Sprintf("You have reached the maximum of %d attempts for this quiz", q.MaxAttempts))
			return
		case errors.Is(err, quiz.ErrBadIdentity):
			writeError(w, http.StatusBadRequest, "Identity required", err.Error())
			return
		case err != nil:
			log.Printf("quiz-launch: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error",
				"Failed to create quiz launch session")
			return
		}

		launchURL := publicURL + "/quiz/" + q.ID
		if a.AccessToken != "" {
			launchURL += "?token=" + a.AccessToken
		}
		writeJSON(w, http.StatusOK, out{
			Success:     true,
			AttemptID:   a.ID,
			LaunchURL:   launchURL,
			AccessToken: a.AccessToken,
			Quiz: quizOut{
				ID:           q.ID,
				Title:        q.Title,
				Description:  q.Description,
				Duration:     q.Duration,
				RequireSeb:   q.RequireSEB,
				SebConfigKey: q.SEBConfigKey,
				SebQuitURL:   q.SEBQuitURL,
			},
		})
	}
}
