package follows

import (
	"fmt"
	"time"

	"margin/internal/recordstore"
)

// Follow is a directed edge from one user to another.
type Follow struct {
	FollowerID  string    `json:"followerId"`
	FollowedID  string    `json:"followedId"`
	DateCreated time.Time `json:"dateCreated"`
}

// Key returns the record key for a follow edge. The key encodes both ends
// of the edge, so following the same user twice lands on the same record.
func Key(followerID, followedID string) string {
	return fmt.Sprintf("follow_%s_%s", followerID, followedID)
}

// FromRecord maps a stored record back to a follow edge.
func FromRecord(rec recordstore.Record) (*Follow, error) {
	follower := rec.String("followerID")
	followed := rec.String("followedID")
	if follower == "" || followed == "" {
		return nil, fmt.Errorf("%w: follow %s missing endpoint", recordstore.ErrInvalid, rec.Key)
	}
	return &Follow{
		FollowerID:  follower,
		FollowedID:  followed,
		DateCreated: rec.Time("dateCreated"),
	}, nil
}

// ToRecord maps the follow edge to its wire form.
func (f *Follow) ToRecord() recordstore.Record {
	rec := recordstore.New(recordstore.TypeFollow, Key(f.FollowerID, f.FollowedID))
	rec.Set("followerID", f.FollowerID)
	rec.Set("followedID", f.FollowedID)
	rec.Set("dateCreated", f.DateCreated)
	return rec
}
