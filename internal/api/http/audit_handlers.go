package http

import (
	"net/http"
	"strconv"

	"github.com/quizgate/quizgate/internal/audit"
)

// ListEventsHandler exposes the audit trail to instructors/admins:
// GET /audit/events?type=SEBValidationFailed&limit=50.
func ListEventsHandler(events *audit.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := r.URL.Query().Get("type")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := events.List(r.Context(), typ, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
