package comments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"margin/internal/core/users"
	"margin/internal/recordstore"
)

// Quote anchors a comment to a highlighted passage of the page.
type Quote struct {
	Text     string `json:"text"`
	Selector string `json:"selector"`
	Offset   int    `json:"offset"`
}

// Comment is a threaded comment on a page. Replies reference their parent
// by ID; a nil ParentCommentID means top-level. Only top-level comments
// count toward the page's commentCount.
type Comment struct {
	CommentID       string    `json:"commentId"`
	Text            string    `json:"text"`
	DateCreated     time.Time `json:"dateCreated"`
	UserID          string    `json:"userId"`
	Username        string    `json:"username"`
	PageURL         string    `json:"pageUrl"`
	ParentCommentID *string   `json:"parentCommentId,omitempty"`
	Quote           *Quote    `json:"quote,omitempty"`
	LikeCount       int       `json:"likeCount"`
	SaveCount       int       `json:"saveCount"`
	Reported        bool      `json:"reported"`
	ReportCount     int       `json:"reportCount"`
}

// New builds a fresh comment with a collision-resistant ID.
func New(pageURL, text string, author users.User, parentCommentID *string, quote *Quote) *Comment {
	return &Comment{
		CommentID:       uuid.NewString(),
		Text:            text,
		DateCreated:     time.Now().UTC(),
		UserID:          author.UserID,
		Username:        author.Username,
		PageURL:         pageURL,
		ParentCommentID: parentCommentID,
		Quote:           quote,
	}
}

// IsReply reports whether this comment is a reply rather than top-level.
func (c *Comment) IsReply() bool {
	return c.ParentCommentID != nil
}

// FromRecord maps a stored record back to a comment. Required fields are
// text, urlString, and userID; everything else falls back to a sensible
// default here so call sites never deal with partial records.
func FromRecord(rec recordstore.Record) (*Comment, error) {
	text := rec.String("text")
	pageURL := rec.String("urlString")
	userID := rec.String("userID")
	if text == "" || pageURL == "" || userID == "" {
		return nil, fmt.Errorf("%w: comment %s missing required fields", recordstore.ErrInvalid, rec.Key)
	}

	c := &Comment{
		CommentID:   rec.String("commentID"),
		Text:        text,
		DateCreated: rec.Time("dateCreated"),
		UserID:      userID,
		Username:    rec.String("username"),
		PageURL:     pageURL,
		LikeCount:   rec.Int("likeCount"),
		SaveCount:   rec.Int("saveCount"),
		Reported:    rec.Bool("isReported"),
		ReportCount: rec.Int("reportCount"),
	}

	if c.CommentID == "" {
		c.CommentID = rec.Key
	}
	if c.Username == "" {
		c.Username = shortID(userID)
	}

	if parent := rec.String("parentCommentID"); parent != "" {
		c.ParentCommentID = &parent
	}
	if quoted := rec.String("quotedText"); quoted != "" {
		c.Quote = &Quote{
			Text:     quoted,
			Selector: rec.String("quotedTextSelector"),
			Offset:   rec.Int("quotedTextOffset"),
		}
	}

	return c, nil
}

// ToRecord maps the comment to its flat wire form. The record key is the
// comment ID itself.
func (c *Comment) ToRecord() recordstore.Record {
	rec := recordstore.New(recordstore.TypeComment, c.CommentID)
	rec.Set("commentID", c.CommentID)
	rec.Set("text", c.Text)
	rec.Set("dateCreated", c.DateCreated)
	rec.Set("userID", c.UserID)
	rec.Set("username", c.Username)
	rec.Set("urlString", c.PageURL)
	rec.Set("likeCount", c.LikeCount)
	rec.Set("saveCount", c.SaveCount)
	rec.Set("isReported", boolToInt(c.Reported))
	rec.Set("reportCount", c.ReportCount)
	if c.ParentCommentID != nil {
		rec.Set("parentCommentID", *c.ParentCommentID)
	}
	if c.Quote != nil {
		rec.Set("quotedText", c.Quote.Text)
		rec.Set("quotedTextSelector", c.Quote.Selector)
		rec.Set("quotedTextOffset", c.Quote.Offset)
	}
	return rec
}

func shortID(userID string) string {
	if len(userID) > 8 {
		return userID[:8]
	}
	return userID
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
