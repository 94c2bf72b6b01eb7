package page

import (
	"encoding/json"
	"net/http"

	"margin/internal/api/handlers"
	"margin/internal/api/middleware"
	"margin/internal/core/pages"
)

// Handler serves page lookups and reports
type Handler struct {
	service *pages.Service
}

func NewHandler(service *pages.Service) *Handler {
	return &Handler{service: service}
}

// HandleGetPage returns the page record for a URL, if one exists
// GET /pages?url=<page url>
//
// Responds 200 with {"exists": false} for URLs nobody has commented on,
// so clients render an empty comment layer without treating it as an error.
func (h *Handler) HandleGetPage(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "url is required")
		return
	}

	page, err := h.service.FetchIfExists(r.Context(), rawURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if page == nil {
		handlers.WriteJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}

	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		"exists": true,
		"page":   page,
	})
}

// HandleReportPage flags a page for moderation
// POST /pages/report
//
// Request body: { "url": "<page url>" }
func (h *Handler) HandleReportPage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if req.URL == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "url is required")
		return
	}

	user := middleware.GetUser(r)
	if err := h.service.Report(r.Context(), user, req.URL); err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, map[string]any{"reported": true})
}
