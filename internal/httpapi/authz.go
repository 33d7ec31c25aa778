package httpapi

import (
	"net/http"

	"keygate.io/internal/auth"
)

// requirePermission gates a route on the named permission. An
// unauthenticated request is 401, a missing permission definition is a
// server misconfiguration (500, logged loudly), a denied pair is 403.
func (a *API) requirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "not authorized")
				return
			}
			granted, err := a.rbac.HasPermission(r.Context(), user.Role.ID(), perm)
			if err != nil {
				a.handleAuthError(w, r, err)
				return
			}
			if !granted {
				writeError(w, r, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireVerified denies unverified principals flatly, with none of the
// authentication gate's allow-list exceptions.
func (a *API) requireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "not authorized")
			return
		}
		if !user.IsEmailVerified {
			writeError(w, r, http.StatusForbidden, "please verify your email address")
			return
		}
		next.ServeHTTP(w, r)
	})
}
