package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique research session ID
// Format: session_<uuid>
func NewSessionID() string {
	return "session_" + uuid.New().String()
}

// NewChunkID generates a unique chunk ID
// Format: chunk_<uuid>
func NewChunkID() string {
	return "chunk_" + uuid.New().String()
}
