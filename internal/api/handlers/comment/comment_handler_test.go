package comment

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin/internal/api/middleware"
	"margin/internal/core/comments"
	"margin/internal/core/pages"
	"margin/internal/grace"
	"margin/internal/recordstore"
)

func newTestRouter(t *testing.T) (chi.Router, *grace.Keeper) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := recordstore.NewMemStore()
	keeper := grace.NewKeeper(logger)

	pageService := pages.NewService(store, nil, keeper, logger)
	commentService := comments.NewService(store, pageService, keeper, logger)
	handler := NewHandler(commentService)

	r := chi.NewRouter()
	r.With(middleware.OptionalAuth).Get("/comments", handler.HandleGetThread)
	r.With(middleware.RequireAuth).Post("/comments", handler.HandleCreateComment)
	r.With(middleware.RequireAuth).Delete("/comments/{commentID}", handler.HandleDeleteComment)
	return r, keeper
}

func postComment(t *testing.T, r chi.Router, userID, username string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/comments", bytes.NewReader(raw))
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUsername, username)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateCommentAndReadThread(t *testing.T) {
	router, keeper := newTestRouter(t)

	rec := postComment(t, router, "user-alice", "alice", map[string]any{
		"url":  "https://example.com/story",
		"text": "well written",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created comments.Comment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.CommentID)
	assert.Equal(t, "alice", created.Username)

	require.True(t, keeper.Drain(time.Second))

	req := httptest.NewRequest(http.MethodGet, "/comments?url=https://example.com/story", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var thread struct {
		Comments []comments.Comment `json:"comments"`
		Count    int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &thread))
	require.Equal(t, 1, thread.Count)
	assert.Equal(t, created.CommentID, thread.Comments[0].CommentID)
}

func TestCreateCommentRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postComment(t, router, "", "", map[string]any{
		"url":  "https://example.com/story",
		"text": "anonymous shout",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateCommentValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postComment(t, router, "user-alice", "alice", map[string]any{
		"url":  "https://example.com/story",
		"text": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postComment(t, router, "user-alice", "alice", map[string]any{
		"text": "no url",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCommentAuthorOnly(t *testing.T) {
	router, keeper := newTestRouter(t)

	rec := postComment(t, router, "user-alice", "alice", map[string]any{
		"url":  "https://example.com/story",
		"text": "to be deleted",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created comments.Comment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, keeper.Drain(time.Second))

	del := httptest.NewRequest(http.MethodDelete, "/comments/"+created.CommentID, nil)
	del.Header.Set(middleware.HeaderUserID, "user-bob")
	del.Header.Set(middleware.HeaderUsername, "bob")
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, del)
	assert.Equal(t, http.StatusForbidden, delRec.Code)

	del = httptest.NewRequest(http.MethodDelete, "/comments/"+created.CommentID, nil)
	del.Header.Set(middleware.HeaderUserID, "user-alice")
	del.Header.Set(middleware.HeaderUsername, "alice")
	delRec = httptest.NewRecorder()
	router.ServeHTTP(delRec, del)
	assert.Equal(t, http.StatusOK, delRec.Code)
}

func TestThreadForUncommentedURL(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/comments?url=https://example.com/quiet", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var thread struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	assert.Zero(t, thread.Count)
}
