package routes

import (
	"github.com/go-chi/chi/v5"

	"margin/internal/api/handlers/comment"
	"margin/internal/api/middleware"
	"margin/internal/core/comments"
)

// RegisterCommentRoutes registers comment thread endpoints
func RegisterCommentRoutes(r chi.Router, service *comments.Service) {
	handler := comment.NewHandler(service)

	r.With(middleware.OptionalAuth).Get("/comments", handler.HandleGetThread)
	r.With(middleware.RequireAuth).Post("/comments", handler.HandleCreateComment)
	r.With(middleware.RequireAuth).Delete("/comments/{commentID}", handler.HandleDeleteComment)
	r.With(middleware.RequireAuth).Post("/comments/{commentID}/report", handler.HandleReportComment)
}
