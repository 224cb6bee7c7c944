package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// Identity is established upstream (session service / API gateway); this
// core only consumes the forwarded headers. The callback endpoint is the one
// route mounted without this middleware.
type Identity struct {
	UserID  string
	IsAdmin bool
}

type contextKey struct{}

var identityKey contextKey

// Middleware rejects requests without a forwarded user id and stores the
// identity on the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}

		id := Identity{
			UserID:  userID,
			IsAdmin: r.Header.Get("X-User-Role") == "admin",
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity set by Middleware. The zero value means
// the request was unauthenticated.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}
