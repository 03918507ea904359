package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/quizgate/quizgate/internal/auth/middleware"
	"github.com/quizgate/quizgate/internal/quiz"
	"github.com/quizgate/quizgate/internal/seb"
	"github.com/quizgate/quizgate/internal/storage"
)

type questionIn struct {
	Text          string   `json:"question_text"`
	Type          string   `json:"question_type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Points        int      `json:"points"`
	OrderIndex    int      `json:"order_index"`
	ImageURL      string   `json:"image_url,omitempty"`
}

// CreateQuizHandler creates a draft quiz with its questions:
// POST /quizzes. Lockdown secrets are generated server-side and never
// echoed back; the response carries ids and status only.
func CreateQuizHandler(store *quiz.SQLStore) http.HandlerFunc {
	type in struct {
		Title                  string       `json:"title"`
		Description            string       `json:"description"`
		Duration               int          `json:"duration"`
		AllowMultipleAttempts  bool         `json:"allow_multiple_attempts"`
		MaxAttempts            int          `json:"max_attempts"`
		ShuffleQuestions       bool         `json:"shuffle_questions"`
		ShowResultsImmediately bool         `json:"show_results_immediately"`
		AccessPassword         string       `json:"access_password"`
		RequireSeb             bool         `json:"require_seb"`
		SebQuitURL             string       `json:"seb_quit_url"`
		Questions              []questionIn `json:"questions"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req in
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json", "")
			return
		}

		q := quiz.Quiz{
			Title:                  req.Title,
			Description:            req.Description,
			Duration:               req.Duration,
			Status:                 quiz.StatusDraft,
			AllowMultipleAttempts:  req.AllowMultipleAttempts,
			MaxAttempts:            req.MaxAttempts,
			ShuffleQuestions:       req.ShuffleQuestions,
			ShowResultsImmediately: req.ShowResultsImmediately,
			RequireSEB:             req.RequireSeb,
			SEBQuitURL:             req.SebQuitURL,
			CreatedBy:              auth.SubjectFromContext(r.Context()),
		}
		if req.AccessPassword != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(req.AccessPassword), bcrypt.DefaultCost)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Internal server error", "")
				return
			}
			q.PasswordHash = string(hash)
		}
		if req.RequireSeb {
			var err error
			if q.SEBConfigKey, err = seb.NewSecret(); err != nil {
				writeError(w, http.StatusInternalServerError, "Internal server error", "")
				return
			}
			if q.SEBBrowserExamKey, err = seb.NewSecret(); err != nil {
				writeError(w, http.StatusInternalServerError, "Internal server error", "")
				return
			}
		}

		questions := make([]quiz.Question, 0, len(req.Questions))
		for _, in := range req.Questions {
			questions = append(questions, quiz.Question{
				Text:          in.Text,
				Type:          in.Type,
				Options:       in.Options,
				CorrectAnswer: in.CorrectAnswer,
				Points:        in.Points,
				OrderIndex:    in.OrderIndex,
				ImageURL:      in.ImageURL,
			})
		}
		if err := quiz.Validate(q, questions); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quiz", err.Error())
			return
		}
		if err := store.PutQuiz(r.Context(), q, questions); err != nil {
			log.Printf("create quiz: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":     q.ID,
			"status": q.Status,
		})
	}
}

func setStatusHandler(store *quiz.SQLStore, status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		if status == quiz.StatusPublished {
			// Publishing re-checks the lockdown invariant in case the row
			// was edited out from under its secrets.
			q, err := store.GetQuiz(r.Context(), id)
			if errors.Is(err, quiz.ErrQuizNotFound) {
				writeError(w, http.StatusNotFound, "Quiz not found", "")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Internal server error", "")
				return
			}
			if q.RequireSEB && q.SEBConfigKey == "" {
				writeError(w, http.StatusConflict, "Quiz SEB configuration missing",
					"Regenerate the lockdown secrets before publishing")
				return
			}
		}
		if err := store.SetQuizStatus(r.Context(), id, status); err != nil {
			if errors.Is(err, quiz.ErrQuizNotFound) {
				writeError(w, http.StatusNotFound, "Quiz not found", "")
				return
			}
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": status})
	}
}

// PublishQuizHandler: POST /quizzes/{quizID}/publish.
func PublishQuizHandler(store *quiz.SQLStore) http.HandlerFunc {
	return setStatusHandler(store, quiz.StatusPublished)
}

// ArchiveQuizHandler: POST /quizzes/{quizID}/archive. Archiving hides the
// quiz from new attempts without touching history.
func ArchiveQuizHandler(store *quiz.SQLStore) http.HandlerFunc {
	return setStatusHandler(store, quiz.StatusArchived)
}

// GetQuizHandler returns the student-safe view of a published quiz:
// GET /quizzes/{quizID}. Answer keys and lockdown secrets are stripped.
func GetQuizHandler(store *quiz.SQLStore) http.HandlerFunc {
	type out struct {
		Quiz      quiz.Quiz       `json:"quiz"`
		Questions []quiz.Question `json:"questions"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		q, err := store.GetPublishedQuiz(r.Context(), id)
		if errors.Is(err, quiz.ErrQuizUnavailable) {
			writeError(w, http.StatusNotFound, "Quiz not found or not published", "")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		questions, err := store.GetQuestions(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		for i := range questions {
			questions[i].CorrectAnswer = ""
		}
		writeJSON(w, http.StatusOK, out{Quiz: q, Questions: questions})
	}
}

// VerifyPasswordHandler checks a quiz's access password:
// POST /quizzes/{quizID}/verify-password. Callers gate the launch on
// this; admission itself treats the password as already verified.
func VerifyPasswordHandler(store *quiz.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		var req struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json", "")
			return
		}
		q, err := store.GetPublishedQuiz(r.Context(), id)
		if errors.Is(err, quiz.ErrQuizUnavailable) {
			writeError(w, http.StatusNotFound, "Quiz not found or not published", "")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		if q.PasswordHash == "" {
			writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(q.PasswordHash), []byte(req.Password)) != nil {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"valid": false, "error": "Invalid password",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
	}
}

// ExportSEBConfigHandler renders and serves the quiz's .seb client
// settings file: GET /quizzes/{quizID}/seb-config. This is the one
// authorized surface that reveals the config key.
func ExportSEBConfigHandler(store *quiz.SQLStore, bs storage.BlobStore, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		q, err := store.GetQuiz(r.Context(), id)
		if errors.Is(err, quiz.ErrQuizNotFound) {
			writeError(w, http.StatusNotFound, "Quiz not found", "")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		if !q.RequireSEB {
			writeError(w, http.StatusConflict, "Quiz does not require SEB", "")
			return
		}
		if q.SEBConfigKey == "" {
			writeError(w, http.StatusInternalServerError, "Quiz SEB configuration missing", "")
			return
		}

		export := seb.ConfigExport{
			QuizID:    q.ID,
			QuizTitle: q.Title,
			StartURL:  publicURL + "/quiz/" + q.ID,
			QuitURL:   q.SEBQuitURL,
			ConfigKey: q.SEBConfigKey,
		}
		key, err := seb.WriteConfig(bs, export)
		if err != nil {
			log.Printf("seb export: quiz %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		rc, err := bs.Get(key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/seb")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName()+`"`)
		_, _ = io.Copy(w, rc)
	}
}
