// Package user defines the user model used throughout the application,
// particularly for authentication, profile management and ownership scoping.
package user

import "time"

// Visibility values allowed for a user profile.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// User represents a registered account.
// PasswordHash is excluded from JSON serialization: profile and auth
// responses carry every other field, the hash stays inside the auth
// and profile layers.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string `json:"id"`

	Username string `json:"username"`

	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `json:"-"`

	// Avatar is an optional URI of the profile picture.
	Avatar string `json:"avatar,omitempty"`

	// Visibility is either "public" or "private".
	Visibility string `json:"visibility"`

	CreatedAt time.Time `json:"createdAt"`
}
