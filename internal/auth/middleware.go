// Package auth validates bearer tokens and exposes the caller's identity to
// handlers. Token issuance lives elsewhere; this service only verifies.
package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/arkan-dev/backend-mall/internal/common"
)

// Middleware authenticates requests with an HMAC-signed bearer token.
type Middleware struct {
	Secret []byte
}

// RequireAuth rejects requests without a valid token and stores the subject
// claim as the user id on the request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		tok, err := jwt.ParseString(raw,
			jwt.WithKey(jwa.HS256, m.Secret),
			jwt.WithValidate(true),
		)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
			return
		}
		userID, err := uuid.Parse(strings.TrimSpace(tok.Subject()))
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "token subject is not a user id", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAuthUser(r.Context(), userID)))
	})
}
