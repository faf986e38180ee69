package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyGuard rejects repeated submits carrying the same
// Idempotency-Key within the retention window. Keys are scoped per user so
// two callers reusing the same header value do not collide.
type IdempotencyGuard struct {
	R   *redis.Client
	TTL time.Duration
}

func submitKey(userID, header string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + header))
	return "idem:checkout:" + hex.EncodeToString(sum[:])
}

// Middleware claims the request's idempotency key before the handler runs.
// Requests without a key pass through untouched.
func (g IdempotencyGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || g.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		var scope string
		if userID, ok := AuthUser(r.Context()); ok {
			scope = userID.String()
		}
		ttl := g.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		claimed, err := g.R.SetNX(r.Context(), submitKey(scope, header), "1", ttl).Result()
		if err != nil {
			JSONError(w, http.StatusBadGateway, CodeExternalService, "idempotency store unavailable", nil)
			return
		}
		if !claimed {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "request with this idempotency key was already accepted", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
