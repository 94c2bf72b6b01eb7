package follow

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"margin/internal/api/handlers"
	"margin/internal/api/middleware"
	"margin/internal/core/follows"
)

// Handler serves follow edge writes and follower listings
type Handler struct {
	service *follows.Service
}

func NewHandler(service *follows.Service) *Handler {
	return &Handler{service: service}
}

type toggleRequest struct {
	UserID string `json:"userId"`
}

// HandleToggleFollow flips whether the acting user follows another user
// POST /follows/toggle
//
// Request body: { "userId": "<followed user id>" }
func (h *Handler) HandleToggleFollow(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if req.UserID == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "userId is required")
		return
	}

	user := middleware.GetUser(r)
	following, err := h.service.Toggle(r.Context(), user, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, map[string]any{"following": following})
}

// HandleGetFollowing lists who a user follows
// GET /users/{userID}/following
func (h *Handler) HandleGetFollowing(w http.ResponseWriter, r *http.Request) {
	h.listEdges(w, r, h.service.Following, "following")
}

// HandleGetFollowers lists a user's followers
// GET /users/{userID}/followers
func (h *Handler) HandleGetFollowers(w http.ResponseWriter, r *http.Request) {
	h.listEdges(w, r, h.service.Followers, "followers")
}

// HandleIsFollowing reports whether the acting user follows another user
// GET /follows/{userID}
func (h *Handler) HandleIsFollowing(w http.ResponseWriter, r *http.Request) {
	followedID := chi.URLParam(r, "userID")
	if followedID == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "userID is required")
		return
	}

	user := middleware.GetUser(r)
	following, err := h.service.IsFollowing(r.Context(), user.UserID, followedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"following": following})
}

func (h *Handler) listEdges(w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]string, error), field string) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "userID is required")
		return
	}

	ids, err := list(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		field:   ids,
		"count": len(ids),
	})
}
