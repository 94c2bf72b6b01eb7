package mediafetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"

	"margin/internal/core/pages"
)

const (
	maxBodyBytes = 1 << 20 // cap HTML reads at 1 MiB
	userAgent    = "margin-bot/1.0"
)

// Fetcher scrapes display metadata (title, favicon, thumbnail) from live
// pages. Hosts that keep failing are skipped via a circuit breaker until
// they cool off.
type Fetcher struct {
	client  *retryablehttp.Client
	breaker *circuitBreaker
	logger  *slog.Logger
}

func NewFetcher(logger *slog.Logger) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &Fetcher{
		client:  client,
		breaker: newCircuitBreaker(logger),
		logger:  logger,
	}
}

var _ pages.MediaFetcher = (*Fetcher)(nil)

// Fetch downloads the page and extracts OpenGraph metadata, falling back
// to the <title> tag and the conventional /favicon.ico location.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (pages.Media, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pages.Media{}, fmt.Errorf("parsing page URL: %w", err)
	}

	if ok, err := f.breaker.canAttempt(u.Host); !ok {
		return pages.Media{}, err
	}

	body, err := f.download(ctx, pageURL)
	if err != nil {
		f.breaker.recordFailure(u.Host, err)
		return pages.Media{}, err
	}
	f.breaker.recordSuccess(u.Host)

	media := parseMetadata(body)
	media.FaviconURL = resolveRef(u, media.FaviconURL)
	if media.FaviconURL == "" {
		media.FaviconURL = u.Scheme + "://" + u.Host + "/favicon.ico"
	}
	media.ThumbnailURL = resolveRef(u, media.ThumbnailURL)
	return media, nil
}

func (f *Fetcher) download(ctx context.Context, pageURL string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading page body: %w", err)
	}
	return string(body), nil
}

// parseMetadata walks the HTML once collecting og: tags, the <title>
// fallback, and any <link rel="icon"> reference.
func parseMetadata(htmlContent string) pages.Media {
	var media pages.Media
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return media
	}

	var pageTitle string

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				property := getAttr(n, "property")
				content := getAttr(n, "content")
				switch property {
				case "og:title":
					if media.Title == "" {
						media.Title = content
					}
				case "og:image":
					if media.ThumbnailURL == "" {
						media.ThumbnailURL = content
					}
				}
			case "link":
				rel := strings.ToLower(getAttr(n, "rel"))
				if (rel == "icon" || rel == "shortcut icon") && media.FaviconURL == "" {
					media.FaviconURL = getAttr(n, "href")
				}
			case "title":
				if pageTitle == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					pageTitle = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if media.Title == "" {
		media.Title = pageTitle
	}
	return media
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// resolveRef makes a possibly-relative reference absolute against the page.
func resolveRef(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}
