package engagement

import "errors"

var (
	// ErrInvalidTarget indicates the toggle target has no key.
	ErrInvalidTarget = errors.New("invalid engagement target")

	// ErrTargetMissing indicates the counter update found no backing
	// record for the target. Page-target callers must ensure the page
	// exists before toggling; see the pages package.
	ErrTargetMissing = errors.New("engagement target record missing")
)
