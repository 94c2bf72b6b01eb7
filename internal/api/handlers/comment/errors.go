package comment

import (
	"errors"
	"log"
	"net/http"

	"margin/internal/api/handlers"
	"margin/internal/core/comments"
	"margin/internal/core/users"
	"margin/internal/recordstore"
	"margin/internal/urlkey"
)

// handleServiceError converts service errors to appropriate HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, comments.ErrCommentNotFound):
		handlers.WriteError(w, http.StatusNotFound, "CommentNotFound", "Comment not found")
	case errors.Is(err, comments.ErrParentNotFound):
		handlers.WriteError(w, http.StatusNotFound, "ParentNotFound", "The parent comment was not found")
	case errors.Is(err, comments.ErrNotAuthorized):
		handlers.WriteError(w, http.StatusForbidden, "NotAuthorized", "Only the author may delete this comment")
	case errors.Is(err, comments.ErrContentEmpty):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "Comment text cannot be empty")
	case errors.Is(err, comments.ErrContentTooLong):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "Comment text is too long")
	case errors.Is(err, urlkey.ErrInvalidURL):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "The URL could not be parsed")
	case errors.Is(err, users.ErrAuthenticationRequired):
		handlers.WriteError(w, http.StatusUnauthorized, "AuthRequired", "Authentication required")
	case errors.Is(err, recordstore.ErrUnavailable):
		handlers.WriteError(w, http.StatusServiceUnavailable, "TemporarilyUnavailable", "The record store is unavailable, try again shortly")
	default:
		log.Printf("Comment handler error: %v", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
	}
}
