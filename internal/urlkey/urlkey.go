package urlkey

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
)

// ErrInvalidURL indicates the input could not be canonicalized into a page key
var ErrInvalidURL = errors.New("invalid URL")

// maxKeyLength is the longest normalized URL we use as a record key directly.
// Longer URLs collapse to a host+hash key to stay within record name limits.
const maxKeyLength = 200

// trackingParams are query parameters stripped during normalization so that
// the same page shared through different channels maps to one record key.
var trackingParams = map[string]struct{}{
	// Google Analytics & Ads
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_content": {}, "utm_term": {},
	"gclid": {}, "gclsrc": {}, "fbclid": {}, "dclid": {}, "msclkid": {},

	// Amazon tracking
	"tag": {}, "ref": {}, "ref_": {}, "linkcode": {}, "camp": {}, "creative": {}, "creativeasin": {},

	// Social media tracking
	"igshid": {}, "igsh": {},

	// E-commerce tracking
	"afid": {}, "sid": {}, "dfa": {}, "cpng": {}, "adgroup": {}, "lid": {}, "network": {},
	"device": {}, "location": {}, "gad_source": {}, "gad_campaignid": {}, "gbraid": {}, "fndsrc": {},

	// Generic tracking
	"source": {}, "medium": {}, "campaign": {}, "content": {}, "term": {}, "referrer": {},
}

// Normalize canonicalizes an arbitrary URL string into the stable identity
// used as the page record key. The result is deterministic: the same input
// always yields the same key. Raw user input must never be used as a key
// directly; everything goes through here first.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	// Bare "example.com/a" input gets a scheme so it parses with a host
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", ErrInvalidURL
	}

	// Fragments, user info, and passwords never identify a distinct page
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if _, tracked := trackingParams[strings.ToLower(name)]; tracked {
				q.Del(name)
			}
		}
		u.RawQuery = q.Encode()
	}

	// A trailing slash is noise, on the root path included: "example.com"
	// and "example.com/" must map to one key or the page's social state
	// splits in two.
	if u.Path == "/" {
		u.Path = ""
	}
	normalized := u.String()
	if strings.HasSuffix(normalized, "/") && !strings.HasSuffix(normalized, "://") {
		normalized = strings.TrimSuffix(normalized, "/")
	}

	if len(normalized) > maxKeyLength {
		return hashedKey(u.Host, normalized), nil
	}

	return normalized, nil
}

// Domain extracts the host of a normalized URL for display and record fields.
// Returns "" for input that does not parse, matching the resilient fallback
// behavior of page record mapping.
func Domain(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return u.Host
}

// hashedKey produces a short deterministic key for URLs too long to store
// as record names.
func hashedKey(host, normalized string) string {
	h := fnv.New64a()
	h.Write([]byte(normalized))
	if host == "" {
		return fmt.Sprintf("url-%d", h.Sum64())
	}
	return fmt.Sprintf("%s-%d", host, h.Sum64())
}
