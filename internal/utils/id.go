package utils

import "github.com/google/uuid"

// GenerateID returns a new random identifier for persisted entities.
func GenerateID() string {
	return uuid.NewString()
}
