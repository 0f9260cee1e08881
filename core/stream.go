package core

import (
	"errors"
	"fmt"
)

// TransportMode describes how the bytes of a stream are framed. It starts
// Undetermined and locks exactly once.
type TransportMode int

const (
	// ModeUndetermined means not enough bytes have arrived to decide.
	ModeUndetermined TransportMode = iota
	// ModeFramedEvents means the stream uses event:/data: line framing.
	ModeFramedEvents
	// ModeRawText means the stream is plain text rendered verbatim.
	ModeRawText
)

// String returns the string representation of the mode.
func (m TransportMode) String() string {
	switch m {
	case ModeUndetermined:
		return "undetermined"
	case ModeFramedEvents:
		return "framed"
	case ModeRawText:
		return "raw"
	default:
		return "unknown"
	}
}

// Terminal is the absorbing end state of a stream session. It is written at
// most once; the first writer wins.
type Terminal int32

const (
	// TerminalNone means the session has not ended.
	TerminalNone Terminal = iota
	// TerminalCompleted means the stream finished cleanly.
	TerminalCompleted
	// TerminalErrored means the stream failed or the server sent an error frame.
	TerminalErrored
	// TerminalCancelled means the session was torn down by its owner.
	TerminalCancelled
)

// String returns the string representation of the terminal state.
func (t Terminal) String() string {
	switch t {
	case TerminalNone:
		return "none"
	case TerminalCompleted:
		return "completed"
	case TerminalErrored:
		return "errored"
	case TerminalCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StreamEvent is a semantic event produced by the frame parser. The set of
// implementations is closed: TextDelta, Completed and ErrorEvent.
type StreamEvent interface {
	isStreamEvent()
}

// TextDelta carries a visible text fragment.
type TextDelta struct {
	Text string
}

// Completed signals that the stream finished. Implicit is true when the
// completion was inferred from a clean end of the transport.
type Completed struct {
	Implicit bool
}

// ErrorEvent signals that the stream failed.
type ErrorEvent struct {
	Err *StreamError
}

func (TextDelta) isStreamEvent()  {}
func (Completed) isStreamEvent()  {}
func (ErrorEvent) isStreamEvent() {}

// DefaultStreamErrorMessage is used when a transport fails without a message.
const DefaultStreamErrorMessage = "stream connection failed"

// StreamError is the error surfaced for a failed stream. Message is what the
// rendering collaborator shows; Cause is the underlying transport error, if any.
type StreamError struct {
	Message string
	Cause   error
}

// NewStreamError builds a StreamError, substituting the generic message when
// msg is empty.
func NewStreamError(msg string, cause error) *StreamError {
	if msg == "" {
		msg = DefaultStreamErrorMessage
	}
	return &StreamError{Message: msg, Cause: cause}
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StreamError) Unwrap() error { return e.Cause }

// AsStreamError extracts a *StreamError from err, wrapping foreign errors.
func AsStreamError(err error) *StreamError {
	if err == nil {
		return nil
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}
	return NewStreamError("", err)
}
