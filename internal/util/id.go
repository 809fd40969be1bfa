package util

import "github.com/google/uuid"

// NewID returns a random UUID string, used for request IDs and booking
// surface IDs.
func NewID() string {
	return uuid.NewString()
}
