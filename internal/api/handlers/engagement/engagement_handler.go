package engagement

import (
	"encoding/json"
	"errors"
	"net/http"

	"margin/internal/api/handlers"
	"margin/internal/api/middleware"
	"margin/internal/core/engagement"
	"margin/internal/core/pages"
	"margin/internal/recordstore"
	"margin/internal/urlkey"
)

// Handler serves like/save toggles and engagement state reads
type Handler struct {
	service *engagement.Service
	pages   *pages.Service
	store   recordstore.Store
}

func NewHandler(service *engagement.Service, pageService *pages.Service, store recordstore.Store) *Handler {
	return &Handler{service: service, pages: pageService, store: store}
}

type toggleRequest struct {
	Edge string `json:"edge"` // "like" | "save"
	Kind string `json:"kind"` // "page" | "comment"
	Key  string `json:"key"`  // page URL or comment ID
}

// HandleToggle flips a like or save for the acting user and returns the
// new optimistic state immediately
// POST /engagement/toggle
//
// Request body: { "edge": "like", "kind": "page", "key": "https://..." }
func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}

	edge, ok := engagement.ParseEdgeType(req.Edge)
	if !ok {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "edge must be 'like' or 'save'")
		return
	}
	kind, ok := engagement.ParseTargetKind(req.Kind)
	if !ok {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "kind must be 'page' or 'comment'")
		return
	}
	if req.Key == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "key is required")
		return
	}

	user := middleware.GetUser(r)
	target := engagement.Target{Kind: kind, Key: req.Key}

	// Displayed counters are seeded from the stored record before the
	// first toggle so the optimistic flip adjusts the real count, not
	// zero. The first social action on an unknown URL also creates its
	// page record.
	switch kind {
	case engagement.TargetPage:
		page, err := h.pages.Ensure(r.Context(), req.Key)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		target.Key = page.URL
		h.service.Seed(target, page.LikeCount, page.SaveCount)
	case engagement.TargetComment:
		rec, err := h.store.Get(r.Context(), req.Key)
		switch {
		case err == nil:
			h.service.Seed(target, rec.Int("likeCount"), rec.Int("saveCount"))
		case errors.Is(err, recordstore.ErrNotFound):
			// Missing comment: the toggle's background sync detects the
			// absent target and rolls the optimistic state back.
		default:
			handleServiceError(w, err)
			return
		}
	}

	result, err := h.service.Toggle(r.Context(), edge, target, user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, result)
}

// HandleGetState reports the displayed engagement state of one target
// GET /engagement/state?kind=<page|comment>&key=<target key>
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	kind, ok := engagement.ParseTargetKind(r.URL.Query().Get("kind"))
	if !ok {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "kind must be 'page' or 'comment'")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "key is required")
		return
	}
	if kind == engagement.TargetPage {
		normalized, err := urlkey.Normalize(key)
		if err != nil {
			handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "The URL could not be parsed")
			return
		}
		key = normalized
	}

	var storedLikes, storedSaves int
	rec, err := h.store.Get(r.Context(), key)
	switch {
	case err == nil:
		storedLikes = rec.Int("likeCount")
		storedSaves = rec.Int("saveCount")
	case errors.Is(err, recordstore.ErrNotFound):
		// No record means zero counts; local optimistic state still applies.
	default:
		handleServiceError(w, err)
		return
	}

	user := middleware.GetUser(r)
	state := h.service.State(engagement.Target{Kind: kind, Key: key}, user, storedLikes, storedSaves)
	handlers.WriteJSON(w, http.StatusOK, state)
}

// HandleListTargets lists the target keys the user has liked or saved
// GET /engagement/targets?edge=<like|save>&kind=<page|comment>
func (h *Handler) HandleListTargets(w http.ResponseWriter, r *http.Request) {
	edge, ok := engagement.ParseEdgeType(r.URL.Query().Get("edge"))
	if !ok {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "edge must be 'like' or 'save'")
		return
	}
	kind, ok := engagement.ParseTargetKind(r.URL.Query().Get("kind"))
	if !ok {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "kind must be 'page' or 'comment'")
		return
	}

	user := middleware.GetUser(r)
	keys, err := h.service.TargetKeys(r.Context(), user, edge, kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// HandleRefresh rebuilds the user's local engagement state from the store
// POST /engagement/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if err := h.service.Refresh(r.Context(), user); err != nil {
		handleServiceError(w, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}
