// Package session owns the lifecycle of one streaming connection.
//
// A Session moves through Idle -> Connecting -> Streaming and ends in exactly
// one of the absorbing states Completed, Errored or Cancelled. The terminal
// state is written with a single compare-and-set; every later terminal signal
// (a duplicate completed frame, a transport error after completion, a late
// Cancel) is a no-op, so the completion and error callbacks fire at most once
// and never both.
//
// Bytes from the transport are fed to a stream.Parser in receipt order and the
// resulting text deltas are appended and forwarded before any terminal
// callback runs. Once the session is terminal its transport context is
// cancelled and nothing further is applied.
package session
