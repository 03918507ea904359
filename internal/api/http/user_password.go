package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	auth "github.com/quizgate/quizgate/internal/auth/middleware"
)

// ChangePasswordHandler lets the authenticated staff account rotate its
// own password: POST /account/password.
func ChangePasswordHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}

		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json", "")
			return
		}
		if len(req.NewPassword) < 8 {
			writeError(w, http.StatusBadRequest, "Password too short",
				"New password must be at least 8 characters")
			return
		}

		var stored string
		err := dbh.QueryRowContext(r.Context(),
			`SELECT password_hash FROM users WHERE id=$1`, userID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "User not found", "")
			return
		}
		if err != nil {
			log.Printf("change-password: load %s: %v", userID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(req.OldPassword)) != nil {
			writeError(w, http.StatusForbidden, "Incorrect password", "")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		if _, err := dbh.ExecContext(r.Context(),
			`UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), userID); err != nil {
			log.Printf("change-password: update %s: %v", userID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
