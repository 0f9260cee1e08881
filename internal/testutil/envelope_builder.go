package testutil

import (
	"github.com/tidwall/sjson"
)

// EnvelopeBuilder helps construct remote computation responses for tests.
// Example:
//
//	body := NewEnvelopeBuilder().ArchiveID("X1").Build()
//
// The default envelope is a successful response without an identifier.
type EnvelopeBuilder struct {
	body string
}

// NewEnvelopeBuilder creates a builder for a successful, empty envelope.
func NewEnvelopeBuilder() *EnvelopeBuilder {
	b := &EnvelopeBuilder{body: "{}"}
	return b.Set("success", true)
}

// ArchiveID sets data.starship.archive_id (chainable).
func (b *EnvelopeBuilder) ArchiveID(id string) *EnvelopeBuilder {
	return b.Set("data.starship.archive_id", id)
}

// Failed marks the envelope unsuccessful with message (chainable).
func (b *EnvelopeBuilder) Failed(message string) *EnvelopeBuilder {
	b.Set("success", false)
	if message != "" {
		b.Set("message", message)
	}
	return b
}

// Set writes an arbitrary value at path (chainable).
func (b *EnvelopeBuilder) Set(path string, value any) *EnvelopeBuilder {
	if s, err := sjson.Set(b.body, path, value); err == nil {
		b.body = s
	}
	return b
}

// Build returns the JSON body.
func (b *EnvelopeBuilder) Build() string { return b.body }
