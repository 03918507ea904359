package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/quizgate/quizgate/internal/rbac"
)

// RoleFromDB swaps the token's role claim for the authoritative role in
// the users table. Tokens outlive role changes; without this a demoted
// teacher keeps authoring rights until their JWT expires. When
// allowClaimFallback is set (offline mode) a subject missing from the
// table keeps the claim role instead of being rejected.
func RoleFromDB(dbh *sql.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)

			var role string
			err := dbh.QueryRowContext(ctx,
				`SELECT role FROM users WHERE id=$1 OR username=$1`, sub).Scan(&role)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, sql.ErrNoRows) || isUsersTableMissing(err):
				if allowClaimFallback && rbac.RoleFromContext(ctx) != "" {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}

func isUsersTableMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table: users") || // sqlite
		strings.Contains(msg, `relation "users" does not exist`) // postgres
}
