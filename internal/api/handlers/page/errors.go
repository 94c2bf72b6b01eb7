package page

import (
	"errors"
	"log"
	"net/http"

	"margin/internal/api/handlers"
	"margin/internal/core/pages"
	"margin/internal/core/users"
	"margin/internal/recordstore"
	"margin/internal/urlkey"
)

// handleServiceError converts service errors to appropriate HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pages.ErrPageNotFound):
		handlers.WriteError(w, http.StatusNotFound, "PageNotFound", "No page record exists for this URL")
	case errors.Is(err, urlkey.ErrInvalidURL):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "The URL could not be parsed")
	case errors.Is(err, users.ErrAuthenticationRequired):
		handlers.WriteError(w, http.StatusUnauthorized, "AuthRequired", "Authentication required")
	case errors.Is(err, recordstore.ErrUnavailable):
		handlers.WriteError(w, http.StatusServiceUnavailable, "TemporarilyUnavailable", "The record store is unavailable, try again shortly")
	default:
		log.Printf("Page handler error: %v", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
	}
}
