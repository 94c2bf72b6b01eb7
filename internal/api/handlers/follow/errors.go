package follow

import (
	"errors"
	"log"
	"net/http"

	"margin/internal/api/handlers"
	"margin/internal/core/follows"
	"margin/internal/core/users"
	"margin/internal/recordstore"
)

// handleServiceError converts service errors to appropriate HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, follows.ErrSelfFollow):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "You cannot follow yourself")
	case errors.Is(err, recordstore.ErrInvalid):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "The follow target is invalid")
	case errors.Is(err, users.ErrAuthenticationRequired):
		handlers.WriteError(w, http.StatusUnauthorized, "AuthRequired", "Authentication required")
	case errors.Is(err, recordstore.ErrUnavailable):
		handlers.WriteError(w, http.StatusServiceUnavailable, "TemporarilyUnavailable", "The record store is unavailable, try again shortly")
	default:
		log.Printf("Follow handler error: %v", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
	}
}
