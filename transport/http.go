package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/logging"
)

// ErrUnexpectedStatus is returned when the stream endpoint answers non-2xx.
var ErrUnexpectedStatus = errors.New("unexpected status")

// DefaultReadBufferSize is the size of a single read from a response body.
const DefaultReadBufferSize = 4096

// HTTPOptions configures the HTTP based transports.
type HTTPOptions struct {
	HTTPClient     *http.Client
	Header         http.Header
	ReadBufferSize int
	Logger         logging.Logger
}

func newHTTPOptions(optFns []func(o *HTTPOptions)) HTTPOptions {
	opts := HTTPOptions{
		HTTPClient:     http.DefaultClient,
		ReadBufferSize: DefaultReadBufferSize,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return opts
}

// EventSource is a push style transport reading an event stream.
type EventSource struct {
	url  string
	opts HTTPOptions
}

// NewEventSource creates an event stream transport for the stream URL.
func NewEventSource(url string, optFns ...func(o *HTTPOptions)) *EventSource {
	return &EventSource{url: url, opts: newHTTPOptions(optFns)}
}

// Stream implements core.Transport.
func (t *EventSource) Stream(ctx context.Context, req core.StreamRequest) (<-chan []byte, <-chan error) {
	return stream(ctx, t.opts, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
		if err != nil {
			return nil, err
		}
		r.URL.RawQuery = req.Values().Encode()
		r.Header.Set("Accept", "text/event-stream")
		r.Header.Set("Cache-Control", "no-cache")
		return r, nil
	})
}

// Info implements core.Transport.
func (t *EventSource) Info() core.TransportInfo {
	return core.TransportInfo{Name: "sse", Kind: core.TransportPush}
}

// Chunked is a pull style transport reading a chunked response body.
type Chunked struct {
	url  string
	opts HTTPOptions
}

// NewChunked creates a chunked body transport for the stream URL.
func NewChunked(url string, optFns ...func(o *HTTPOptions)) *Chunked {
	return &Chunked{url: url, opts: newHTTPOptions(optFns)}
}

// Stream implements core.Transport.
func (t *Chunked) Stream(ctx context.Context, req core.StreamRequest) (<-chan []byte, <-chan error) {
	return stream(ctx, t.opts, func() (*http.Request, error) {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	})
}

// Info implements core.Transport.
func (t *Chunked) Info() core.TransportInfo {
	return core.TransportInfo{Name: "chunked", Kind: core.TransportPull}
}

// stream performs the request and forwards the body in read sized chunks.
func stream(ctx context.Context, opts HTTPOptions, build func() (*http.Request, error)) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		err := readBody(ctx, opts, build, out)
		close(out)
		if err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func readBody(ctx context.Context, opts HTTPOptions, build func() (*http.Request, error), out chan<- []byte) error {
	req, err := build()
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	opts.Logger.Debug("transport.open", "url", req.URL.Redacted(), "status", resp.StatusCode)

	buf := make([]byte, opts.ReadBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", rerr)
		}
	}
}

var (
	_ core.Transport = (*EventSource)(nil)
	_ core.Transport = (*Chunked)(nil)
)
