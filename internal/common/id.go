package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique scrape session ID with the "run_" prefix
// Format: run_<uuid>
func NewSessionID() string {
	return "run_" + uuid.New().String()
}
