package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

type contextKey string

// userKey carries the authenticated username through the request context.
const userKey contextKey = "user"

// withAuth enforces HTTP Basic auth on every route except /health.
// Credentials are verified against the users table. Missing or wrong
// credentials get 401 with a WWW-Authenticate challenge; undecodable
// auth payloads get 400.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Basic ") {
			w.Header().Set("WWW-Authenticate", `Basic realm=api`)
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid auth encoding")
			return
		}

		username, password, ok := strings.Cut(string(decoded), ":")
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid auth encoding")
			return
		}

		cred, err := s.store.LookupCredential(r.Context(), username)
		if err != nil || subtle.ConstantTimeCompare([]byte(cred.Password), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm=api`)
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, cred.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// usernameFrom returns the authenticated username stored by withAuth.
func usernameFrom(ctx context.Context) string {
	u, _ := ctx.Value(userKey).(string)
	return u
}
