package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"keygate.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Routes an unverified principal may still reach: managing their own
// session and finishing verification must not require being verified.
var unverifiedAllowed = map[string]bool{
	"POST /api/auth/verify-email":         true,
	"POST /api/auth/resend-verification":  true,
	"POST /api/auth/logout":               true,
	"POST /api/auth/refresh-token":        true,
	"GET /api/users/profile":              true,
	"PUT /api/users/profile":              true,
}

// withAuth authenticates the bearer token, loads the principal with its
// role resolved and attaches it to the request context. A valid token
// whose subject no longer exists yields 404, not 401.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "not authorized")
			return
		}
		user, err := a.svc.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			case errors.Is(err, auth.ErrNotFound):
				writeError(w, r, http.StatusNotFound, "no user found with this id")
			default:
				a.handleAuthError(w, r, err)
			}
			return
		}
		if !user.IsEmailVerified && !unverifiedAllowed[r.Method+" "+r.URL.Path] {
			writeError(w, r, http.StatusForbidden, "please verify your email address")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
