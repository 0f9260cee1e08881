package core

import "encoding/json"

// TaskKind identifies which remote computation a sub-task performs.
type TaskKind string

const (
	// TaskOrigin derives the origin starship from the birth date.
	TaskOrigin TaskKind = "origin"
	// TaskCelestial derives the starship matching the current moment.
	TaskCelestial TaskKind = "celestial"
	// TaskInquiry derives the starship answering the user's question.
	TaskInquiry TaskKind = "inquiry"
)

// TaskKinds lists the fixed set of sub-tasks in their canonical order.
var TaskKinds = []TaskKind{TaskOrigin, TaskCelestial, TaskInquiry}

// String returns the upper case label used in logs and status displays.
func (k TaskKind) String() string {
	switch k {
	case TaskOrigin:
		return "ORIGIN"
	case TaskCelestial:
		return "CELESTIAL"
	case TaskInquiry:
		return "INQUIRY"
	default:
		return "UNKNOWN"
	}
}

// TaskStatus is the lifecycle state of a sub-task. Within one run it only
// moves forward: Idle -> Loading -> Success | Error.
type TaskStatus int

const (
	// TaskIdle means the task has not been started in the current run.
	TaskIdle TaskStatus = iota
	// TaskLoading means the remote call is in flight.
	TaskLoading
	// TaskSuccess means the remote call returned a successful envelope.
	TaskSuccess
	// TaskError means the remote call failed or returned an unsuccessful envelope.
	TaskError
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	switch s {
	case TaskIdle:
		return "IDLE"
	case TaskLoading:
		return "LOADING"
	case TaskSuccess:
		return "SUCCESS"
	case TaskError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsSettled reports whether the status is final for the current run.
func (s TaskStatus) IsSettled() bool { return s == TaskSuccess || s == TaskError }

// TaskResult is the opaque payload captured from a successful remote call.
// ID is the required identifier; an empty ID means the result is not usable
// for the streaming stage even though the call itself succeeded.
type TaskResult struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HasID reports whether the result carries its required identifier.
func (r TaskResult) HasID() bool { return r.ID != "" }
