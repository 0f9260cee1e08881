// Package engine implements the session controller: the top level sequencer
// that turns user inputs into one streamed interpretation.
//
// # Core Responsibilities
//
// Attempt Orchestration:
//   - Validates inputs and runs the sub-task orchestrator once per attempt
//   - Evaluates readiness only after every sub-task has settled
//   - Starts exactly one stream session when, and only when, the attempt is ready
//
// Restart and Cancellation:
//   - Start always cancels the previous attempt and its session first
//   - Cancel tears the current attempt down without starting a replacement
//   - Late notifications from a replaced attempt are ignored
//
// Read Model:
//   - Snapshot merges per-task statuses with the live session state
//   - Callbacks observe task transitions, readiness, deltas and terminal states
//
// # Flow
//
//	inputs ──► Orchestrator (origin | celestial | inquiry)
//	                │
//	                ▼
//	          Ready predicate ── false ──► NotReady (no session)
//	                │ true
//	                ▼
//	      SessionKey + StreamRequest ──► Session ──► Parser ──► deltas, terminal
//
// # Concurrency Model
//
// The three sub-tasks run in parallel. Every mutation of the controller's
// read model happens under one mutex and is tagged with the attempt that
// produced it; mutations from an attempt that is no longer current are
// dropped. User callbacks are serialized: no two callbacks run at the same
// time, and callbacks may call Snapshot, Start or Cancel.
//
// # Usage
//
//	ctrl := engine.New(client.Specs, transport.NewEventSource(client.StreamURL()))
//	if err := ctrl.Start(ctx, core.Inputs{BirthDate: "1990-05-17"}); err != nil {
//		return err
//	}
//	_ = ctrl.Wait(ctx)
//	fmt.Println(ctrl.Snapshot().VisibleText)
package engine
