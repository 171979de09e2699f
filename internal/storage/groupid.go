package storage

import "github.com/google/uuid"

const (
	groupIDLength   = 8
	groupIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// randomBytes skips the UUID version and variant bytes.
var randomBytes = [groupIDLength]int{0, 1, 2, 3, 4, 5, 10, 11}

// NewGroupID returns a URL-safe 8 character alphanumeric identifier.
// Uniqueness is probabilistic; backends retry on collision.
func NewGroupID() string {
	u := uuid.New()
	id := make([]byte, groupIDLength)
	for i, b := range randomBytes {
		id[i] = groupIDAlphabet[int(u[b])%len(groupIDAlphabet)]
	}
	return string(id)
}

// ValidGroupID reports whether id looks like an identifier from NewGroupID.
func ValidGroupID(id string) bool {
	if len(id) != groupIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// NewID returns an identifier for people and expenses.
func NewID() string {
	return uuid.New().String()
}
