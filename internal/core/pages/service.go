package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"margin/internal/core/comments"
	"margin/internal/core/users"
	"margin/internal/grace"
	"margin/internal/recordstore"
	"margin/internal/urlkey"
)

const mediaTimeout = 20 * time.Second

// Service manages page records. Pages are created lazily, on the first
// write that needs one, and the create is always bundled with whatever
// triggered it so a page never exists without content.
type Service struct {
	store  recordstore.Store
	media  MediaFetcher
	keeper *grace.Keeper
	logger *slog.Logger
}

// NewService creates a page service. media may be nil, in which case pages
// keep their host-derived placeholder title.
func NewService(store recordstore.Store, media MediaFetcher, keeper *grace.Keeper, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		media:  media,
		keeper: keeper,
		logger: logger,
	}
}

var _ comments.PageCreator = (*Service)(nil)

// CreateWithComment creates the page for pageURL together with its first
// comment in one atomic batch. pageURL must already be normalized. If
// another writer created the page between the caller's existence check and
// this write, the comment is attached to the existing page instead.
func (s *Service) CreateWithComment(ctx context.Context, pageURL string, first *comments.Comment) error {
	page := New(pageURL)
	if !first.IsReply() {
		page.CommentCount = 1
	}

	err := recordstore.BatchSaveWithRetry(ctx, s.store, recordstore.Batch{
		Creates: []recordstore.Record{page.ToRecord()},
		Saves:   []recordstore.Record{first.ToRecord()},
	})
	if errors.Is(err, recordstore.ErrConflict) {
		s.logger.Info("page created by another writer, attaching comment",
			"pageURL", pageURL,
			"commentID", first.CommentID)
		return s.attachToExisting(ctx, pageURL, first)
	}
	if err != nil {
		return fmt.Errorf("saving page with first comment: %w", err)
	}

	s.attachMedia(pageURL)
	return nil
}

// attachToExisting handles losing the create race: the page record exists
// now, so write the comment against it like any later comment. The page
// is fetched inside the batch builder so a retry bumps the count the race
// winner stored, not a stale copy.
func (s *Service) attachToExisting(ctx context.Context, pageURL string, c *comments.Comment) error {
	err := recordstore.BatchBuildWithRetry(ctx, s.store, func(ctx context.Context) (recordstore.Batch, error) {
		b := recordstore.Batch{Saves: []recordstore.Record{c.ToRecord()}}
		if c.IsReply() {
			return b, nil
		}
		rec, err := s.store.Get(ctx, pageURL)
		if err != nil {
			return recordstore.Batch{}, fmt.Errorf("fetching page after create conflict: %w", err)
		}
		page := rec.Clone()
		page.Set("commentCount", page.Int("commentCount")+1)
		b.Saves = append(b.Saves, page)
		return b, nil
	})
	if err != nil {
		return fmt.Errorf("attaching comment to existing page: %w", err)
	}
	return nil
}

// Ensure returns the page for rawURL, creating an empty one if none exists.
func (s *Service) Ensure(ctx context.Context, rawURL string) (*Page, error) {
	pageURL, err := urlkey.Normalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("normalizing page URL: %w", err)
	}

	if page, err := s.get(ctx, pageURL); err == nil {
		return page, nil
	} else if !errors.Is(err, ErrPageNotFound) {
		return nil, err
	}

	page := New(pageURL)
	if _, err := s.store.Save(ctx, page.ToRecord(), recordstore.SaveFailOnConflict); err != nil {
		if errors.Is(err, recordstore.ErrConflict) {
			return s.get(ctx, pageURL)
		}
		return nil, fmt.Errorf("creating page: %w", err)
	}
	s.attachMedia(pageURL)
	return page, nil
}

// Fetch returns the page for rawURL, or ErrPageNotFound.
func (s *Service) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	pageURL, err := urlkey.Normalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("normalizing page URL: %w", err)
	}
	return s.get(ctx, pageURL)
}

// FetchIfExists returns the page for rawURL, or (nil, nil) when no page
// record exists yet. A URL nobody has commented on is not an error.
func (s *Service) FetchIfExists(ctx context.Context, rawURL string) (*Page, error) {
	page, err := s.Fetch(ctx, rawURL)
	if errors.Is(err, ErrPageNotFound) {
		return nil, nil
	}
	return page, err
}

// Report flags a page and bumps its report count.
func (s *Service) Report(ctx context.Context, actor users.User, rawURL string) error {
	if !actor.SignedIn() {
		return users.ErrAuthenticationRequired
	}
	pageURL, err := urlkey.Normalize(rawURL)
	if err != nil {
		return fmt.Errorf("normalizing page URL: %w", err)
	}

	rec, err := s.store.Get(ctx, pageURL)
	if errors.Is(err, recordstore.ErrNotFound) {
		return ErrPageNotFound
	}
	if err != nil {
		return fmt.Errorf("fetching page: %w", err)
	}

	updated := rec.Clone()
	updated.Set("isReported", 1)
	updated.Set("reportCount", updated.Int("reportCount")+1)
	if _, err := s.store.Save(ctx, updated, recordstore.SaveCreateOrUpdate); err != nil {
		return fmt.Errorf("reporting page: %w", err)
	}
	s.logger.Info("page reported", "pageURL", pageURL, "userID", actor.UserID)
	return nil
}

func (s *Service) get(ctx context.Context, pageURL string) (*Page, error) {
	rec, err := s.store.Get(ctx, pageURL)
	if errors.Is(err, recordstore.ErrNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	return FromRecord(rec)
}

// attachMedia fills in title, favicon, and thumbnail in the background.
// Every failure is logged and dropped; the placeholder metadata stands.
func (s *Service) attachMedia(pageURL string) {
	if s.media == nil {
		return
	}
	s.keeper.Go("page-media", func() {
		ctx, cancel := context.WithTimeout(context.Background(), mediaTimeout)
		defer cancel()

		media, err := s.media.Fetch(ctx, pageURL)
		if err != nil {
			s.logger.Warn("media fetch failed", "pageURL", pageURL, "error", err)
			return
		}

		rec, err := s.store.Get(ctx, pageURL)
		if err != nil {
			s.logger.Warn("page vanished before media attach", "pageURL", pageURL, "error", err)
			return
		}

		updated := rec.Clone()
		if media.Title != "" {
			updated.Set("title", media.Title)
		}
		if media.FaviconURL != "" {
			updated.Set("faviconURL", media.FaviconURL)
		}
		if media.ThumbnailURL != "" {
			updated.Set("thumbnailURL", media.ThumbnailURL)
		}
		if _, err := s.store.Save(ctx, updated, recordstore.SaveCreateOrUpdate); err != nil {
			s.logger.Warn("media attach failed", "pageURL", pageURL, "error", err)
		}
	})
}
