package routes

import (
	"github.com/go-chi/chi/v5"

	engagementhandler "margin/internal/api/handlers/engagement"
	"margin/internal/api/middleware"
	"margin/internal/core/engagement"
	"margin/internal/core/pages"
	"margin/internal/recordstore"
)

// RegisterEngagementRoutes registers like/save toggle and state endpoints
func RegisterEngagementRoutes(r chi.Router, service *engagement.Service, pageService *pages.Service, store recordstore.Store) {
	handler := engagementhandler.NewHandler(service, pageService, store)

	r.With(middleware.OptionalAuth).Get("/engagement/state", handler.HandleGetState)
	r.With(middleware.RequireAuth).Post("/engagement/toggle", handler.HandleToggle)
	r.With(middleware.RequireAuth).Get("/engagement/targets", handler.HandleListTargets)
	r.With(middleware.RequireAuth).Post("/engagement/refresh", handler.HandleRefresh)
}
