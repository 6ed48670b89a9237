package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/kalambet/howdo/internal/auth"
)

type contextKey string

const sessionUserKey contextKey = "session_user"

// sessionAuth validates an optional bearer token. A request without one
// passes through; a request with an invalid one is rejected.
func sessionAuth(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if issuer == nil || header == "" {
				next.ServeHTTP(w, r)
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "authorization header must be a bearer token")
				return
			}
			userID, err := issuer.Parse(strings.TrimSpace(header[len(prefix):]))
			if err != nil {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), sessionUserKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := sessionUser(r.Context()); !ok {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionUser(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionUserKey).(string)
	return id, ok && id != ""
}

// authorize rejects the request when its session belongs to someone other
// than ownerID. Requests without a session are allowed.
func authorize(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	if sub, ok := sessionUser(r.Context()); ok && sub != ownerID {
		httpError(w, http.StatusForbidden, "permission_error", "token does not grant access to this user's documents")
		return false
	}
	return true
}
