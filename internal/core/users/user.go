package users

import "errors"

// ErrAuthenticationRequired indicates the operation needs a signed-in
// user. Kept distinct from network failures so consumers can show a
// "sign in" prompt instead of a retry.
var ErrAuthenticationRequired = errors.New("authentication required")

// User is the opaque identity handed to this service by the identity
// provider. Provisioning happens outside this codebase; mutating
// operations only need a stable UserID and a display name.
type User struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// SignedIn reports whether this represents an authenticated user.
func (u User) SignedIn() bool {
	return u.UserID != ""
}
