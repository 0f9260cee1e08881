// Package task runs the fixed set of remote computations that gate a stream.
//
// A SubTask wraps one computation with a status and its captured result or
// error. An Orchestrator fans a list of Specs out concurrently and fans them
// back in through an unconditional barrier: a failing task never cancels or
// short-circuits its siblings. Only once every task has settled is the pure
// Ready predicate evaluated.
//
// Each call to Orchestrator.Run builds fresh SubTasks; nothing carries over
// from a previous run.
package task
