package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tenantry.org/internal/auth"
	"tenantry.org/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
}

// authenticate establishes the user id from a bearer token or, failing that,
// a session cookie. Requests without credentials continue anonymously; bad
// credentials are rejected.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := a.identify(r)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthenticated):
				respondUnauthorized(w, r, "invalid credentials")
			default:
				a.logger.Warn("session lookup failed", zap.Error(err))
				writeError(w, r, http.StatusServiceUnavailable, "session store unavailable")
			}
			return
		}
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), userID)))
	})
}

func (a *API) identify(r *http.Request) (string, error) {
	if header := r.Header.Get(authHeader); strings.TrimSpace(header) != "" {
		token, err := extractBearerToken(header)
		if err != nil {
			return "", fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err)
		}
		claims, err := a.tokens.ParseAndValidate(token)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}

	if a.sessions == nil {
		return "", nil
	}
	cookie, err := r.Cookie(a.sessionCookie)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", nil
	}
	sess, err := a.sessions.Get(r.Context(), cookie.Value)
	switch {
	case err == nil:
		return sess.UserID, nil
	case errors.Is(err, session.ErrNotFound):
		// expired or revoked; the caller is anonymous
		return "", nil
	default:
		return "", err
	}
}

// requireUser writes 401 and returns false when the request is anonymous.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r, "authentication required")
		return "", false
	}
	return userID, true
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tenantry"`)
	writeError(w, r, http.StatusUnauthorized, msg)
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

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
