package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for attempts and sessions.
func NewID() string { return uuid.NewString() }
