package tool

import (
	"github.com/google/uuid"
)

// GenerateRandomUUID returns a fresh session id.
func GenerateRandomUUID() string {
	return uuid.New().String()
}
