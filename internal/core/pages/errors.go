package pages

import "errors"

// ErrPageNotFound is returned when no page record exists for a URL.
var ErrPageNotFound = errors.New("page not found")
