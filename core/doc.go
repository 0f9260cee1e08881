// Package core provides the foundational domain types and interfaces shared by
// every astrooracle component. It defines the abstractions for:
//
//   - Sub-tasks (the independent remote computations gating a divination)
//   - Stream events (semantic output of the frame parser)
//   - Transports (the capability interface every streaming connection implements)
//   - The read model (Snapshot) handed to the rendering collaborator
//
// The package intentionally keeps implementation concerns (HTTP clients,
// parsing, orchestration) out of scope, exposing small value types and
// interfaces so that higher layers remain decoupled from concrete transports.
package core
