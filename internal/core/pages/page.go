package pages

import (
	"fmt"
	"strings"
	"time"

	"margin/internal/recordstore"
	"margin/internal/urlkey"
)

// Page is the shared record for a URL that has been commented on. Its
// record key is the normalized URL itself, which is what makes
// create-on-first-write race-safe: two users commenting on the same page
// at once collide on the key instead of creating duplicates.
type Page struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Domain       string    `json:"domain"`
	DateCreated  time.Time `json:"dateCreated"`
	CommentCount int       `json:"commentCount"`
	LikeCount    int       `json:"likeCount"`
	SaveCount    int       `json:"saveCount"`
	FaviconURL   string    `json:"faviconUrl,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Reported     bool      `json:"reported"`
	ReportCount  int       `json:"reportCount"`
}

// New builds a page for a normalized URL with a placeholder title derived
// from the host. Real metadata arrives later from the media fetcher.
func New(pageURL string) *Page {
	domain := urlkey.Domain(pageURL)
	return &Page{
		URL:         pageURL,
		Title:       fallbackTitle(domain),
		Domain:      domain,
		DateCreated: time.Now().UTC(),
	}
}

// FromRecord maps a stored record back to a page. Only urlString is
// required; counts and metadata default when absent so old or partial
// records still load.
func FromRecord(rec recordstore.Record) (*Page, error) {
	pageURL := rec.String("urlString")
	if pageURL == "" {
		return nil, fmt.Errorf("%w: page %s missing urlString", recordstore.ErrInvalid, rec.Key)
	}

	p := &Page{
		URL:          pageURL,
		Title:        rec.String("title"),
		Domain:       rec.String("domain"),
		DateCreated:  rec.Time("dateCreated"),
		CommentCount: rec.Int("commentCount"),
		LikeCount:    rec.Int("likeCount"),
		SaveCount:    rec.Int("saveCount"),
		FaviconURL:   rec.String("faviconURL"),
		ThumbnailURL: rec.String("thumbnailURL"),
		Reported:     rec.Bool("isReported"),
		ReportCount:  rec.Int("reportCount"),
	}
	if p.Domain == "" {
		p.Domain = urlkey.Domain(pageURL)
	}
	if p.Title == "" {
		p.Title = fallbackTitle(p.Domain)
	}
	return p, nil
}

// ToRecord maps the page to its flat wire form keyed by the URL.
func (p *Page) ToRecord() recordstore.Record {
	rec := recordstore.New(recordstore.TypePage, p.URL)
	rec.Set("urlString", p.URL)
	rec.Set("title", p.Title)
	rec.Set("domain", p.Domain)
	rec.Set("dateCreated", p.DateCreated)
	rec.Set("commentCount", p.CommentCount)
	rec.Set("likeCount", p.LikeCount)
	rec.Set("saveCount", p.SaveCount)
	rec.Set("isReported", boolToInt(p.Reported))
	rec.Set("reportCount", p.ReportCount)
	if p.FaviconURL != "" {
		rec.Set("faviconURL", p.FaviconURL)
	}
	if p.ThumbnailURL != "" {
		rec.Set("thumbnailURL", p.ThumbnailURL)
	}
	return rec
}

func fallbackTitle(domain string) string {
	if domain == "" {
		return "Untitled"
	}
	host := strings.TrimPrefix(domain, "www.")
	if host == "" {
		return "Untitled"
	}
	return strings.ToUpper(host[:1]) + host[1:]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
