package core

import "context"

// TransportKind distinguishes push-style connections from pull-style reads.
type TransportKind string

const (
	// TransportPush is a server push connection (event source, websocket).
	TransportPush TransportKind = "push"
	// TransportPull is a chunked request/response body read by the client.
	TransportPull TransportKind = "pull"
)

// TransportInfo contains metadata about a transport implementation.
type TransportInfo struct {
	Name string        `json:"name"`
	Kind TransportKind `json:"kind"`
}

// Transport opens one streaming connection and delivers its raw bytes.
//
// Contract:
//   - The chunk channel carries raw bytes at arbitrary boundaries and is closed
//     when the stream ends, cleanly or not.
//   - After the chunk channel is closed the error channel yields at most one
//     error and is then closed. No error means a clean end of stream.
//   - Cancelling ctx closes the underlying connection; pending sends must not
//     block once ctx is done.
//
// Implementations know nothing about framing; interpretation of the bytes is
// left to the stream parser.
type Transport interface {
	Stream(ctx context.Context, req StreamRequest) (<-chan []byte, <-chan error)

	// Info returns information about the transport implementation.
	Info() TransportInfo
}
