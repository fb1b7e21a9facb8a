package middleware

import (
	"net/http"

	"github.com/drstein77/groceryweb/internal/auth"
)

// Sessions resolves the admin behind a request.
type Sessions interface {
	FromRequest(*http.Request) (string, bool)
}

// RequireAdmin lets authenticated admins through and hands everyone
// else to deny.
func RequireAdmin(sessions Sessions, deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, ok := sessions.FromRequest(r)
			if !ok {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAdmin(r.Context(), name)))
		})
	}
}

// RedirectToLogin is a deny handler for browser pages.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Unauthorized is a deny handler for the JSON API.
func Unauthorized(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusUnauthorized, "authentication required")
}
