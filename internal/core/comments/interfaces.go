package comments

import "context"

// PageCreator creates a page record bundled with its first comment in a
// single atomic write. The comments service delegates here when a comment
// arrives for a URL that has no page yet.
type PageCreator interface {
	CreateWithComment(ctx context.Context, pageURL string, first *Comment) error
}
