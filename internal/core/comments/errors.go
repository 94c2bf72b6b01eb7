package comments

import "errors"

var (
	// ErrCommentNotFound is returned when the requested comment does not exist.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrNotAuthorized is returned when a user attempts to modify a comment
	// they did not author.
	ErrNotAuthorized = errors.New("not authorized to modify this comment")

	// ErrContentEmpty is returned when comment text is empty or whitespace.
	ErrContentEmpty = errors.New("comment text cannot be empty")

	// ErrContentTooLong is returned when comment text exceeds the maximum length.
	ErrContentTooLong = errors.New("comment text exceeds maximum length")

	// ErrParentNotFound is returned when a reply references a parent comment
	// that does not exist on the page.
	ErrParentNotFound = errors.New("parent comment not found")
)
