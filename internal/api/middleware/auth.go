package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"margin/internal/core/users"
)

type contextKey string

const userKey contextKey = "user"

// Identity headers set by the gateway in front of this service.
const (
	HeaderUserID   = "X-Margin-User-ID"
	HeaderUsername = "X-Margin-Username"
)

// RequireAuth ensures the request carries a gateway-verified identity.
// If not, returns 401. If it does, injects the user into the request context.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromHeaders(r)
		if !user.SignedIn() {
			writeAuthError(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// OptionalAuth injects the user when identity headers are present but lets
// anonymous requests through. Read endpoints use this.
func OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromHeaders(r)
		if user.SignedIn() {
			r = r.WithContext(context.WithValue(r.Context(), userKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

// GetUser returns the authenticated user from the request context, or the
// zero user when the request is anonymous.
func GetUser(r *http.Request) users.User {
	user, _ := r.Context().Value(userKey).(users.User)
	return user
}

func userFromHeaders(r *http.Request) users.User {
	return users.User{
		UserID:   strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Username: strings.TrimSpace(r.Header.Get(HeaderUsername)),
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error":   "AuthRequired",
		"message": message,
	}); err != nil {
		log.Printf("Failed to encode auth error: %v", err)
	}
}
