package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/logging"
	"github.com/hupe1980/astrooracle/stream"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("session already started")

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateErrored
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is absorbing.
func (s State) IsTerminal() bool { return s >= StateCompleted }

func stateOf(t core.Terminal) State {
	switch t {
	case core.TerminalCompleted:
		return StateCompleted
	case core.TerminalErrored:
		return StateErrored
	case core.TerminalCancelled:
		return StateCancelled
	default:
		return StateIdle
	}
}

// Handler receives session notifications. All fields are optional. OnDelta
// calls happen in receipt order and before OnComplete or OnError. No OnDelta
// call starts after Cancel has returned.
type Handler struct {
	OnDelta    func(text string)
	OnComplete func(fullText string)
	OnError    func(err *core.StreamError, partialText string)
	// OnStateChange observes every state transition.
	OnStateChange func(state State)
}

// Options configures a Session.
type Options struct {
	// SettleDelay is waited before the transport is opened so a previous
	// session's teardown finishes first.
	SettleDelay time.Duration
	Logger      logging.Logger
	Handler     Handler
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	ID       string
	Key      core.SessionKey
	State    State
	Mode     core.TransportMode
	Text     string
	Terminal core.Terminal
	Err      *core.StreamError
}

// Session streams one logical response identified by its key.
type Session struct {
	id        string
	key       core.SessionKey
	req       core.StreamRequest
	transport core.Transport
	opts      Options

	terminal atomic.Int32

	// deliverMu spans the terminal check and the OnDelta call of one delta.
	deliverMu  sync.Mutex
	delivering atomic.Bool

	mu       sync.Mutex
	state    State
	mode     core.TransportMode
	text     strings.Builder
	err      *core.StreamError
	started  bool
	cancelFn context.CancelFunc
	began    time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an idle session. Nothing is opened until Start.
func New(key core.SessionKey, req core.StreamRequest, transport core.Transport, optFns ...func(o *Options)) *Session {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	id := core.NewID()
	if ol, ok := opts.Logger.(*logging.OracleLogger); ok {
		opts.Logger = ol.WithSession(id, key.String())
	}
	return &Session{
		id:        id,
		key:       key,
		req:       req,
		transport: transport,
		opts:      opts,
		done:      make(chan struct{}),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Key returns the session key.
func (s *Session) Key() core.SessionKey { return s.key }

// Terminal returns the terminal state; TerminalNone while running.
func (s *Session) Terminal() core.Terminal { return core.Terminal(s.terminal.Load()) }

// Done is closed when the session has stopped using its transport.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until Done or ctx is cancelled.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:       s.id,
		Key:      s.key,
		State:    s.state,
		Mode:     s.mode,
		Text:     s.text.String(),
		Terminal: s.Terminal(),
		Err:      s.err,
	}
}

// Start opens the transport asynchronously. The session stops when ctx is
// cancelled, counting as a cancellation. Starting a session that was already
// cancelled is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	if s.Terminal() != core.TerminalNone {
		s.mu.Unlock()
		s.closeDone()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.began = time.Now()
	s.mu.Unlock()

	s.setState(StateConnecting)
	s.opts.Logger.Info("session.start", "session_id", s.id, "session_key", s.key.String(), "transport", s.transport.Info().Name)

	go s.run(ctx)
	return nil
}

// Cancel moves the session to Cancelled and closes the transport. It is
// idempotent and has no effect on a session that already ended.
func (s *Session) Cancel() {
	if s.settle(core.TerminalCancelled, nil) {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			s.closeDone()
		}
	}
}

func (s *Session) run(ctx context.Context) {
	defer s.closeDone()
	defer s.closeTransport()

	if d := s.opts.SettleDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			s.settle(core.TerminalCancelled, nil)
			return
		}
	}

	chunks, errs := s.transport.Stream(ctx, s.req)
	p := stream.NewParser()

	for {
		select {
		case <-ctx.Done():
			s.settle(core.TerminalCancelled, nil)
			return
		case chunk, ok := <-chunks:
			if !ok {
				s.finish(ctx, p, errs)
				return
			}
			s.setState(StateStreaming)
			s.apply(p.Feed(chunk), p)
			if p.Done() {
				return
			}
		}
	}
}

// finish reads the transport's final error once the chunk channel closed.
func (s *Session) finish(ctx context.Context, p *stream.Parser, errs <-chan error) {
	var err error
	select {
	case err = <-errs:
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		s.settle(core.TerminalCancelled, nil)
		return
	}
	if err != nil {
		s.apply(p.Fail(err), p)
		return
	}
	s.apply(p.Finish(), p)
}

func (s *Session) apply(events []core.StreamEvent, p *stream.Parser) {
	s.mu.Lock()
	if s.Terminal() == core.TerminalNone && s.mode == core.ModeUndetermined {
		s.mode = p.Mode()
	}
	s.mu.Unlock()
	for _, ev := range events {
		s.handle(ev)
	}
}

// handle applies one parser event. Every mutation is guarded by the terminal
// flag so nothing changes after the first terminal event.
func (s *Session) handle(ev core.StreamEvent) {
	switch e := ev.(type) {
	case core.TextDelta:
		if e.Text == "" {
			return
		}
		s.deliverMu.Lock()
		defer s.deliverMu.Unlock()
		s.mu.Lock()
		if s.Terminal() != core.TerminalNone {
			s.mu.Unlock()
			return
		}
		s.text.WriteString(e.Text)
		s.mu.Unlock()
		if fn := s.opts.Handler.OnDelta; fn != nil {
			s.delivering.Store(true)
			defer s.delivering.Store(false)
			fn(e.Text)
		}
	case core.Completed:
		s.settle(core.TerminalCompleted, nil)
	case core.ErrorEvent:
		err := e.Err
		if err == nil {
			err = core.NewStreamError("", nil)
		}
		s.settle(core.TerminalErrored, err)
	}
}

// settle performs the single terminal transition. It reports whether this
// call won.
func (s *Session) settle(to core.Terminal, serr *core.StreamError) bool {
	release := s.holdDelivery()
	s.mu.Lock()
	if !s.terminal.CompareAndSwap(int32(core.TerminalNone), int32(to)) {
		s.mu.Unlock()
		release()
		return false
	}
	s.state = stateOf(to)
	s.err = serr
	text := s.text.String()
	mode := s.mode
	began := s.began
	s.mu.Unlock()
	release()

	s.closeTransport()
	s.logTerminal(to, mode, len(text), began, serr)

	h := s.opts.Handler
	if h.OnStateChange != nil {
		h.OnStateChange(stateOf(to))
	}
	switch to {
	case core.TerminalCompleted:
		if h.OnComplete != nil {
			h.OnComplete(text)
		}
	case core.TerminalErrored:
		if h.OnError != nil {
			h.OnError(serr, text)
		}
	}
	return true
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.Terminal() != core.TerminalNone || s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	if fn := s.opts.Handler.OnStateChange; fn != nil {
		fn(st)
	}
}

// holdDelivery waits for an in-flight delta to finish before the terminal
// flips. It does not wait while OnDelta runs, so a handler may call Cancel.
func (s *Session) holdDelivery() func() {
	if s.delivering.Load() {
		return func() {}
	}
	s.deliverMu.Lock()
	return s.deliverMu.Unlock
}

func (s *Session) closeTransport() {
	s.mu.Lock()
	cancel := s.cancelFn
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) logTerminal(to core.Terminal, mode core.TransportMode, textBytes int, began time.Time, serr *core.StreamError) {
	var dur time.Duration
	if !began.IsZero() {
		dur = time.Since(began)
	}
	if sl, ok := s.opts.Logger.(logging.StreamLogger); ok {
		var err error
		if serr != nil {
			err = serr
		}
		sl.LogStream(mode.String(), to.String(), textBytes, dur, err)
		return
	}
	args := []any{
		"session_id", s.id,
		"terminal", to.String(),
		"mode", mode.String(),
		"text_bytes", textBytes,
		"duration", dur,
	}
	if serr != nil {
		s.opts.Logger.Warn("session.terminal", append(args, "error", serr.Error())...)
		return
	}
	s.opts.Logger.Info("session.terminal", args...)
}
