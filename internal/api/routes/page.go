package routes

import (
	"github.com/go-chi/chi/v5"

	"margin/internal/api/handlers/page"
	"margin/internal/api/middleware"
	"margin/internal/core/pages"
)

// RegisterPageRoutes registers page lookup and report endpoints
func RegisterPageRoutes(r chi.Router, service *pages.Service) {
	handler := page.NewHandler(service)

	r.With(middleware.OptionalAuth).Get("/pages", handler.HandleGetPage)
	r.With(middleware.RequireAuth).Post("/pages/report", handler.HandleReportPage)
}
