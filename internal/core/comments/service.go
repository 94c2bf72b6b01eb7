package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"margin/internal/core/users"
	"margin/internal/grace"
	"margin/internal/recordstore"
	"margin/internal/urlkey"
)

const (
	maxCommentLength = 10000
	threadPageSize   = 100
	syncTimeout      = 30 * time.Second
)

// Service manages threaded comments. Writes are optimistic: the comment is
// visible locally immediately and persisted in the background. The first
// comment on a URL is the exception; it is written synchronously together
// with the new page record so neither can exist without the other.
type Service struct {
	store  recordstore.Store
	pages  PageCreator
	keeper *grace.Keeper
	logger *slog.Logger

	mu       sync.Mutex
	pending  map[string][]*Comment // normalized URL -> comments awaiting persistence
	syncErrs map[string]error      // normalized URL -> last background failure
}

func NewService(store recordstore.Store, pages PageCreator, keeper *grace.Keeper, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		pages:    pages,
		keeper:   keeper,
		logger:   logger,
		pending:  make(map[string][]*Comment),
		syncErrs: make(map[string]error),
	}
}

// Add posts a comment to the page at rawURL. A nil parentCommentID makes it
// top-level; top-level comments bump the page's comment count, replies do
// not. If no page exists for the URL yet, the page and this comment are
// created together in one atomic write.
func (s *Service) Add(ctx context.Context, author users.User, rawURL, text string, parentCommentID *string, quote *Quote) (*Comment, error) {
	if !author.SignedIn() {
		return nil, users.ErrAuthenticationRequired
	}
	if err := validateText(text); err != nil {
		return nil, err
	}

	pageURL, err := urlkey.Normalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("normalizing page URL: %w", err)
	}

	if parentCommentID != nil {
		if _, err := s.store.Get(ctx, *parentCommentID); err != nil {
			if errors.Is(err, recordstore.ErrNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, fmt.Errorf("checking parent comment: %w", err)
		}
	}

	comment := New(pageURL, strings.TrimSpace(text), author, parentCommentID, quote)

	_, err = s.store.Get(ctx, pageURL)
	if errors.Is(err, recordstore.ErrNotFound) {
		// First comment on this URL: the page does not exist yet, so create
		// page and comment as one batch before reporting success.
		if err := s.pages.CreateWithComment(ctx, pageURL, comment); err != nil {
			return nil, fmt.Errorf("creating page with first comment: %w", err)
		}
		return comment, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}

	s.addPending(pageURL, comment)
	s.keeper.Go("comment-save", func() {
		s.persist(comment)
	})
	return comment, nil
}

// persist writes the comment and, for a top-level comment, the page's
// bumped comment count. The page is fetched fresh here, and again before
// a retry, so the counter bump applies to the record's current state
// rather than the snapshot Add took; replaying a stale snapshot after the
// retry delay would erase counter writes that landed in between.
func (s *Service) persist(comment *Comment) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	err := recordstore.BatchBuildWithRetry(ctx, s.store, func(ctx context.Context) (recordstore.Batch, error) {
		saves := []recordstore.Record{comment.ToRecord()}
		if !comment.IsReply() {
			pageRec, err := s.store.Get(ctx, comment.PageURL)
			if err != nil {
				return recordstore.Batch{}, fmt.Errorf("fetching page: %w", err)
			}
			page := pageRec.Clone()
			page.Set("commentCount", page.Int("commentCount")+1)
			saves = append(saves, page)
		}
		return recordstore.Batch{Saves: saves}, nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// The comment stays visible locally; the failure is surfaced
		// through SyncError so callers can prompt a retry.
		s.syncErrs[comment.PageURL] = err
		s.logger.Error("comment save failed",
			"commentID", comment.CommentID,
			"pageURL", comment.PageURL,
			"error", err)
		return
	}
	delete(s.syncErrs, comment.PageURL)
	s.removePendingLocked(comment.PageURL, comment.CommentID)
}

// Delete removes a comment. Only the author may delete; the check happens
// before any store access beyond fetching the comment itself. Deleting a
// top-level comment decrements the page's comment count, never below zero.
func (s *Service) Delete(ctx context.Context, actor users.User, commentID string) error {
	if !actor.SignedIn() {
		return users.ErrAuthenticationRequired
	}

	rec, err := s.store.Get(ctx, commentID)
	if errors.Is(err, recordstore.ErrNotFound) {
		return ErrCommentNotFound
	}
	if err != nil {
		return fmt.Errorf("fetching comment: %w", err)
	}

	comment, err := FromRecord(rec)
	if err != nil {
		return fmt.Errorf("decoding comment: %w", err)
	}
	if comment.UserID != actor.UserID {
		return ErrNotAuthorized
	}

	err = recordstore.BatchBuildWithRetry(ctx, s.store, func(ctx context.Context) (recordstore.Batch, error) {
		b := recordstore.Batch{Deletes: []string{commentID}}
		if comment.IsReply() {
			return b, nil
		}
		pageRec, err := s.store.Get(ctx, comment.PageURL)
		if errors.Is(err, recordstore.ErrNotFound) {
			return b, nil
		}
		if err != nil {
			return recordstore.Batch{}, fmt.Errorf("fetching page: %w", err)
		}
		page := pageRec.Clone()
		count := page.Int("commentCount") - 1
		if count < 0 {
			count = 0
		}
		page.Set("commentCount", count)
		b.Saves = append(b.Saves, page)
		return b, nil
	})
	if err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}

	s.mu.Lock()
	s.removePendingLocked(comment.PageURL, commentID)
	s.mu.Unlock()
	return nil
}

// Report flags a comment and bumps its report count.
func (s *Service) Report(ctx context.Context, actor users.User, commentID string) error {
	if !actor.SignedIn() {
		return users.ErrAuthenticationRequired
	}

	rec, err := s.store.Get(ctx, commentID)
	if errors.Is(err, recordstore.ErrNotFound) {
		return ErrCommentNotFound
	}
	if err != nil {
		return fmt.Errorf("fetching comment: %w", err)
	}

	updated := rec.Clone()
	updated.Set("isReported", 1)
	updated.Set("reportCount", updated.Int("reportCount")+1)
	if _, err := s.store.Save(ctx, updated, recordstore.SaveCreateOrUpdate); err != nil {
		return fmt.Errorf("reporting comment: %w", err)
	}
	s.logger.Info("comment reported", "commentID", commentID, "userID", actor.UserID)
	return nil
}

// Thread returns the comments on a page, newest first. Records that fail
// to decode are logged and skipped rather than failing the whole fetch.
// Comments still awaiting persistence are merged in at the front.
func (s *Service) Thread(ctx context.Context, rawURL string) ([]*Comment, error) {
	pageURL, err := urlkey.Normalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("normalizing page URL: %w", err)
	}

	q := recordstore.Query{
		Type:    recordstore.TypeComment,
		Filters: []recordstore.Filter{{Field: "urlString", Value: pageURL}},
		Sort:    &recordstore.Sort{Field: "dateCreated", Descending: true},
		Limit:   threadPageSize,
	}

	var thread []*Comment
	for {
		recs, cursor, err := s.store.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("querying comments: %w", err)
		}
		for _, rec := range recs {
			c, err := FromRecord(rec)
			if err != nil {
				s.logger.Warn("skipping malformed comment record", "key", rec.Key, "error", err)
				continue
			}
			thread = append(thread, c)
		}
		if cursor == "" {
			break
		}
		q.Cursor = cursor
	}

	s.mu.Lock()
	pending := s.pending[pageURL]
	stored := make(map[string]bool, len(thread))
	for _, c := range thread {
		stored[c.CommentID] = true
	}
	var merged []*Comment
	for i := len(pending) - 1; i >= 0; i-- {
		if !stored[pending[i].CommentID] {
			merged = append(merged, pending[i])
		}
	}
	s.mu.Unlock()

	return append(merged, thread...), nil
}

// Replies returns the direct replies to a comment, newest first.
func (s *Service) Replies(ctx context.Context, rawURL, parentCommentID string) ([]*Comment, error) {
	thread, err := s.Thread(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	var replies []*Comment
	for _, c := range thread {
		if c.ParentCommentID != nil && *c.ParentCommentID == parentCommentID {
			replies = append(replies, c)
		}
	}
	return replies, nil
}

// SyncError reports and clears the most recent background persistence
// failure for a page, if any.
func (s *Service) SyncError(rawURL string) error {
	pageURL, err := urlkey.Normalize(rawURL)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	syncErr := s.syncErrs[pageURL]
	delete(s.syncErrs, pageURL)
	return syncErr
}

func (s *Service) addPending(pageURL string, c *Comment) {
	s.mu.Lock()
	s.pending[pageURL] = append(s.pending[pageURL], c)
	s.mu.Unlock()
}

func (s *Service) removePendingLocked(pageURL, commentID string) {
	list := s.pending[pageURL]
	for i, c := range list {
		if c.CommentID == commentID {
			s.pending[pageURL] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.pending[pageURL]) == 0 {
		delete(s.pending, pageURL)
	}
}

func validateText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrContentEmpty
	}
	if utf8.RuneCountInString(trimmed) > maxCommentLength {
		return ErrContentTooLong
	}
	return nil
}
