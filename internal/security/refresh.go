package security

import "github.com/google/uuid"

// NewRefreshToken returns the opaque capability stored with a session. UUIDv4
// is sourced from crypto/rand; the value carries no claims and cannot be
// derived from the access token.
func NewRefreshToken() string {
	return uuid.NewString()
}
