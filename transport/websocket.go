package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/logging"
)

// WebSocketOptions configures the websocket transport.
type WebSocketOptions struct {
	Dialer *websocket.Dialer
	Header http.Header
	Logger logging.Logger
}

// WebSocket is a push style transport where every message is one chunk. A
// normal close frame ends the stream cleanly.
type WebSocket struct {
	url  string
	opts WebSocketOptions
}

// NewWebSocket creates a websocket transport for the stream URL. http and
// https URLs are mapped to ws and wss.
func NewWebSocket(rawURL string, optFns ...func(o *WebSocketOptions)) *WebSocket {
	opts := WebSocketOptions{Dialer: websocket.DefaultDialer, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &WebSocket{url: toWebSocketURL(rawURL), opts: opts}
}

func toWebSocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}

// Stream implements core.Transport.
func (t *WebSocket) Stream(ctx context.Context, req core.StreamRequest) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		err := t.read(ctx, req, out)
		close(out)
		if err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (t *WebSocket) read(ctx context.Context, req core.StreamRequest, out chan<- []byte) error {
	u, err := url.Parse(t.url)
	if err != nil {
		return fmt.Errorf("parse stream url: %w", err)
	}
	u.RawQuery = req.Values().Encode()

	conn, resp, err := t.opts.Dialer.DialContext(ctx, u.String(), t.opts.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w %d: dial stream: %v", ErrUnexpectedStatus, resp.StatusCode, err)
		}
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()
	t.opts.Logger.Debug("transport.open", "url", u.Redacted(), "kind", "websocket")

	// Closing the connection unblocks ReadMessage once ctx is done.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("stream closed with code %d: %s", ce.Code, ce.Text)
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if len(msg) == 0 {
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Info implements core.Transport.
func (t *WebSocket) Info() core.TransportInfo {
	return core.TransportInfo{Name: "websocket", Kind: core.TransportPush}
}

var _ core.Transport = (*WebSocket)(nil)
