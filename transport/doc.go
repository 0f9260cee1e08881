// Package transport provides the connections a stream session reads from.
//
// Every transport implements core.Transport and delivers raw bytes only;
// framing is interpreted by the stream parser.
//
//   - EventSource: push style, GET with query parameters, event-stream accept header
//   - Chunked: pull style, POST with a JSON body, chunked response read incrementally
//   - WebSocket: push style, each message is one chunk
package transport
