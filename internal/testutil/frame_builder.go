package testutil

import (
	"strings"

	"github.com/tidwall/sjson"
)

// FrameBuilder provides a fluent helper for constructing event-stream bodies.
// Example:
//
//	body := NewFrameBuilder().Result("Hello ").Result("World").Completed().String()
//
// Each call appends one frame terminated by a blank line.
type FrameBuilder struct {
	sb strings.Builder
}

// NewFrameBuilder creates an empty builder.
func NewFrameBuilder() *FrameBuilder { return &FrameBuilder{} }

// Result appends a named result frame carrying text in output_text (chainable).
func (b *FrameBuilder) Result(text string) *FrameBuilder {
	payload, _ := sjson.Set("", "output_text", text)
	return b.Event("result", payload)
}

// Data appends an unnamed data frame with a raw payload (chainable).
func (b *FrameBuilder) Data(payload string) *FrameBuilder {
	b.sb.WriteString("data: " + payload + "\n\n")
	return b
}

// Event appends a named frame with a raw payload (chainable).
func (b *FrameBuilder) Event(name, payload string) *FrameBuilder {
	b.sb.WriteString("event: " + name + "\n")
	b.sb.WriteString("data: " + payload + "\n\n")
	return b
}

// Completed appends a completed event without data (chainable).
func (b *FrameBuilder) Completed() *FrameBuilder {
	b.sb.WriteString("event: completed\n\n")
	return b
}

// Error appends an error event carrying message (chainable).
func (b *FrameBuilder) Error(message string) *FrameBuilder {
	payload, _ := sjson.Set("", "message", message)
	return b.Event("error", payload)
}

// Comment appends a comment line, as servers send for keep-alive (chainable).
func (b *FrameBuilder) Comment(text string) *FrameBuilder {
	b.sb.WriteString(": " + text + "\n\n")
	return b
}

// String returns the accumulated body.
func (b *FrameBuilder) String() string { return b.sb.String() }

// Chunks splits the body into pieces of at most size bytes.
func (b *FrameBuilder) Chunks(size int) []string {
	return SplitEvery(b.String(), size)
}

// SplitEvery splits s into consecutive pieces of at most size bytes.
func SplitEvery(s string, size int) []string {
	if size <= 0 {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
