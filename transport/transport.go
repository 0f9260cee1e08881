package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/logging"
)

// Names accepted by New.
const (
	NameEventSource = "sse"
	NameChunked     = "chunked"
	NameWebSocket   = "websocket"
)

// New builds the transport registered under name for the stream URL. An
// empty name selects the event source transport. client may be nil.
func New(name, url string, client *http.Client, logger logging.Logger) (core.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameEventSource:
		return NewEventSource(url, func(o *HTTPOptions) {
			o.HTTPClient = client
			o.Logger = logger
		}), nil
	case NameChunked:
		return NewChunked(url, func(o *HTTPOptions) {
			o.HTTPClient = client
			o.Logger = logger
		}), nil
	case NameWebSocket, "ws":
		return NewWebSocket(url, func(o *WebSocketOptions) { o.Logger = logger }), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want %s, %s or %s)", name, NameEventSource, NameChunked, NameWebSocket)
	}
}
