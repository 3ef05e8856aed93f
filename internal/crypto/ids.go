package crypto

import "github.com/google/uuid"

// GenerateID returns a random identifier used as the secret's lookup key.
func GenerateID() string {
	return uuid.NewString()
}

// GenerateToken returns a random admin token. It is generated independently
// of the id so that knowing the share link never reveals the token.
func GenerateToken() string {
	return uuid.NewString()
}
