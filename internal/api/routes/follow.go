package routes

import (
	"github.com/go-chi/chi/v5"

	"margin/internal/api/handlers/follow"
	"margin/internal/api/middleware"
	"margin/internal/core/follows"
)

// RegisterFollowRoutes registers follow edge endpoints
func RegisterFollowRoutes(r chi.Router, service *follows.Service) {
	handler := follow.NewHandler(service)

	r.With(middleware.RequireAuth).Post("/follows/toggle", handler.HandleToggleFollow)
	r.With(middleware.RequireAuth).Get("/follows/{userID}", handler.HandleIsFollowing)
	r.With(middleware.OptionalAuth).Get("/users/{userID}/following", handler.HandleGetFollowing)
	r.With(middleware.OptionalAuth).Get("/users/{userID}/followers", handler.HandleGetFollowers)
}
