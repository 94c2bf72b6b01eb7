package comment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"margin/internal/api/handlers"
	"margin/internal/api/middleware"
	"margin/internal/core/comments"
)

// Handler serves comment creation, deletion, and thread reads
type Handler struct {
	service *comments.Service
}

func NewHandler(service *comments.Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	URL             string          `json:"url"`
	Text            string          `json:"text"`
	ParentCommentID *string         `json:"parentCommentId,omitempty"`
	Quote           *comments.Quote `json:"quote,omitempty"`
}

// HandleCreateComment posts a comment to a page, creating the page record
// on first write
// POST /comments
func (h *Handler) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if req.URL == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "url is required")
		return
	}

	user := middleware.GetUser(r)
	comment, err := h.service.Add(r.Context(), user, req.URL, req.Text, req.ParentCommentID, req.Quote)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusCreated, comment)
}

// HandleDeleteComment deletes a comment; only its author may do so
// DELETE /comments/{commentID}
func (h *Handler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "commentID")
	if commentID == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "commentID is required")
		return
	}

	user := middleware.GetUser(r)
	if err := h.service.Delete(r.Context(), user, commentID); err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// HandleReportComment flags a comment for moderation
// POST /comments/{commentID}/report
func (h *Handler) HandleReportComment(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "commentID")
	if commentID == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "commentID is required")
		return
	}

	user := middleware.GetUser(r)
	if err := h.service.Report(r.Context(), user, commentID); err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, map[string]any{"reported": true})
}

// HandleGetThread returns a page's comments, newest first. With a parent
// query parameter it returns only that comment's direct replies.
// GET /comments?url=<page url>[&parent=<comment id>]
func (h *Handler) HandleGetThread(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "url is required")
		return
	}

	var thread []*comments.Comment
	var err error
	if parent := r.URL.Query().Get("parent"); parent != "" {
		thread, err = h.service.Replies(r.Context(), rawURL, parent)
	} else {
		thread, err = h.service.Thread(r.Context(), rawURL)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if thread == nil {
		thread = []*comments.Comment{}
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		"comments": thread,
		"count":    len(thread),
	})
}
