package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/astrooracle/core"
)

// ScriptedTransport replays a fixed list of chunks for every stream it opens.
type ScriptedTransport struct {
	Chunks []string
	// Err is reported after the chunks; nil means a clean end.
	Err error
	// Delay is waited before every chunk.
	Delay time.Duration
	// HoldOpen keeps the stream open after the chunks until ctx is done.
	HoldOpen bool

	mu       sync.Mutex
	requests []core.StreamRequest
}

// Stream implements core.Transport.
func (t *ScriptedTransport) Stream(ctx context.Context, req core.StreamRequest) (<-chan []byte, <-chan error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	out := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		err := t.replay(ctx, out)
		close(out)
		if err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

func (t *ScriptedTransport) replay(ctx context.Context, out chan<- []byte) error {
	for _, c := range t.Chunks {
		if t.Delay > 0 {
			select {
			case <-time.After(t.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case out <- []byte(c):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.HoldOpen {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.Err
}

// Requests returns every request the transport received.
func (t *ScriptedTransport) Requests() []core.StreamRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.StreamRequest(nil), t.requests...)
}

// Info implements core.Transport.
func (t *ScriptedTransport) Info() core.TransportInfo {
	return core.TransportInfo{Name: "scripted", Kind: core.TransportPull}
}

// PipeTransport hands every opened stream to the test as a Pipe.
type PipeTransport struct {
	opened chan *Pipe
}

// NewPipeTransport creates a transport that can open up to 16 streams
// before the test collects them.
func NewPipeTransport() *PipeTransport {
	return &PipeTransport{opened: make(chan *Pipe, 16)}
}

// Stream implements core.Transport.
func (t *PipeTransport) Stream(ctx context.Context, req core.StreamRequest) (<-chan []byte, <-chan error) {
	p := &Pipe{Req: req, ctx: ctx, chunks: make(chan []byte), errs: make(chan error, 1)}
	t.opened <- p
	return p.chunks, p.errs
}

// Info implements core.Transport.
func (t *PipeTransport) Info() core.TransportInfo {
	return core.TransportInfo{Name: "pipe", Kind: core.TransportPush}
}

// Next waits for the next opened stream. It returns nil after timeout.
func (t *PipeTransport) Next(timeout time.Duration) *Pipe {
	select {
	case p := <-t.opened:
		return p
	case <-time.After(timeout):
		return nil
	}
}

// Pipe is one stream opened on a PipeTransport.
type Pipe struct {
	Req core.StreamRequest

	ctx    context.Context
	chunks chan []byte
	errs   chan error
	once   sync.Once
}

// Send delivers a chunk and blocks until the reader takes it. It returns
// false once the reader closed the stream.
func (p *Pipe) Send(chunk string) bool {
	select {
	case p.chunks <- []byte(chunk):
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Close ends the stream, cleanly when err is nil.
func (p *Pipe) Close(err error) {
	p.once.Do(func() {
		close(p.chunks)
		if err != nil {
			p.errs <- err
		}
		close(p.errs)
	})
}

// Closed is done once the reader cancelled the stream.
func (p *Pipe) Closed() <-chan struct{} { return p.ctx.Done() }

var (
	_ core.Transport = (*ScriptedTransport)(nil)
	_ core.Transport = (*PipeTransport)(nil)
)
