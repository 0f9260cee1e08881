// Package model streams the oracle interpretation directly from a language
// model instead of the backend's stream endpoint.
//
// Core goals:
//   - Keep provider SDKs (OpenAI compatible, Anthropic) behind a tiny Model interface
//   - Re-frame provider deltas into the same event-stream wire shape the backend
//     serves, so the session and its parser stay transport agnostic
//   - Facilitate lightweight mocking for tests and examples (MockModel)
//
// Providers implement Model in sub-packages; NewTransport turns any Model
// into a core.Transport.
package model
