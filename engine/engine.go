package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/logging"
	"github.com/hupe1980/astrooracle/session"
	"github.com/hupe1980/astrooracle/task"
)

// ErrNotReady is recorded as the last error of an attempt whose sub-tasks
// did not all succeed with identifiers.
var ErrNotReady = errors.New("sub-tasks not ready")

// Config defines tuning parameters of the controller.
type Config struct {
	// SettleDelay is waited before a new session opens its transport, giving
	// the previous session's teardown time to finish.
	SettleDelay time.Duration
}

// DefaultConfig provides the default configuration values.
//
// Configuration values:
//   - SettleDelay: 50ms
var DefaultConfig = Config{
	SettleDelay: 50 * time.Millisecond,
}

// Options configures a Controller using the functional options pattern.
//
// Example:
//
//	ctrl := New(client.Specs, tr, func(o *Options) {
//		o.Logger = logger
//		o.Callbacks = append(o.Callbacks, onComplete)
//	})
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Callbacks are registered with the controller's CallbackManager.
	Callbacks []Callback
}

// SpecFunc builds the sub-task specs of one attempt from its inputs.
type SpecFunc func(in core.Inputs) []task.Spec

// attempt is one run of Start. Its fields other than id, in and cancel are
// guarded by Controller.mu.
type attempt struct {
	id      string
	in      core.Inputs
	cancel  context.CancelFunc
	done    chan struct{}
	session *session.Session
	stopped bool
}

// Controller sequences sub-tasks and the stream session of an attempt.
//
// At most one attempt, and therefore at most one session, is live at any
// time. All public methods are safe for concurrent use.
type Controller struct {
	specs     SpecFunc
	transport core.Transport
	config    Config
	logger    logging.Logger
	callbacks *CallbackManager

	mu       sync.Mutex
	current  *attempt
	snapshot core.Snapshot
}

// New creates a controller that runs specs for every attempt and streams
// through transport.
func New(specs SpecFunc, transport core.Transport, optFns ...func(o *Options)) *Controller {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Controller{
		specs:     specs,
		transport: transport,
		config:    opts.Config,
		logger:    opts.Logger,
		callbacks: NewCallbackManager(opts.Callbacks...),
		snapshot:  core.NewSnapshot(),
	}
}

// Callbacks returns the manager used to dispatch lifecycle events.
func (c *Controller) Callbacks() *CallbackManager { return c.callbacks }

// Start begins a new attempt, cancelling any previous one and its session
// first. It returns an error only when the inputs are invalid; every later
// failure is reported through Snapshot and callbacks. The attempt lives until
// it finishes, Cancel is called, another Start replaces it, or ctx is done.
func (c *Controller) Start(ctx context.Context, in core.Inputs) error {
	if err := in.Validate(); err != nil {
		return err
	}

	actx, cancel := context.WithCancel(ctx)
	a := &attempt{id: core.NewID(), in: in, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	prev := c.current
	var prevSession *session.Session
	if prev != nil {
		prev.stopped = true
		prevSession = prev.session
	}
	c.current = a
	c.snapshot = core.NewSnapshot()
	c.snapshot.AttemptID = a.id
	c.mu.Unlock()

	if prev != nil {
		c.stop(prev, prevSession)
		c.logger.Info("attempt.replaced", "attempt_id", prev.id, "by", a.id)
	}

	c.logger.Info("attempt.start", "attempt_id", a.id)
	go c.run(actx, a)
	return nil
}

// Cancel stops the current attempt without starting a replacement. The
// last snapshot stays readable.
func (c *Controller) Cancel() {
	c.mu.Lock()
	a := c.current
	if a == nil || a.stopped {
		c.mu.Unlock()
		return
	}
	a.stopped = true
	sess := a.session
	c.mu.Unlock()

	c.stop(a, sess)
	c.logger.Info("attempt.cancelled", "attempt_id", a.id)
}

func (c *Controller) stop(a *attempt, sess *session.Session) {
	if sess != nil {
		sess.Cancel()
	}
	a.cancel()
}

// Wait blocks until the current attempt has finished: either the readiness
// predicate failed or its session reached a terminal state.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	a := c.current
	c.mu.Unlock()
	if a == nil {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the read model of the current attempt.
func (c *Controller) Snapshot() core.Snapshot {
	c.mu.Lock()
	snap := c.snapshot.Clone()
	var sess *session.Session
	stopped := false
	if a := c.current; a != nil {
		sess = a.session
		stopped = a.stopped
	}
	c.mu.Unlock()

	if sess == nil {
		if stopped {
			snap.Terminal = core.TerminalCancelled
			snap.Settled = true
		}
		return snap
	}

	ss := sess.Snapshot()
	snap.SessionID = ss.ID
	snap.SessionKey = ss.Key
	snap.Mode = ss.Mode
	snap.VisibleText = ss.Text
	snap.Terminal = ss.Terminal
	if ss.Err != nil {
		snap.LastError = ss.Err
	}
	if ss.Terminal != core.TerminalNone {
		snap.Settled = true
	}
	return snap
}

func (c *Controller) run(ctx context.Context, a *attempt) {
	defer close(a.done)
	defer a.cancel()

	orch := task.NewOrchestrator(c.specs(a.in), func(o *task.Options) {
		o.Logger = c.logger
		o.OnStatus = func(kind core.TaskKind, status core.TaskStatus) {
			c.onTaskStatus(ctx, a, kind, status)
		}
	})
	out := orch.Run(ctx)

	c.mu.Lock()
	if !c.isCurrent(a) {
		c.mu.Unlock()
		return
	}
	for kind, status := range out.Statuses() {
		c.snapshot.TaskStatus[kind] = status
	}
	c.snapshot.Ready = out.Ready

	if !out.Ready {
		err := notReadyError(out)
		c.snapshot.LastError = err
		c.snapshot.Settled = true
		c.mu.Unlock()

		c.logger.Warn("attempt.not_ready", "attempt_id", a.id, "error", err.Error())
		c.fire(ctx, CallbackNotReady, &CallbackContext{AttemptID: a.id, Err: err})
		return
	}

	key := core.NewSessionKey(out.Results(), a.in.Question)
	req := core.NewStreamRequest(key, a.in)
	sess := session.New(key, req, c.transport, func(o *session.Options) {
		o.SettleDelay = c.config.SettleDelay
		o.Logger = c.logger
		o.Handler = c.bind(ctx, a)
	})
	a.session = sess
	c.snapshot.SessionID = sess.ID()
	c.snapshot.SessionKey = key
	c.mu.Unlock()

	c.fire(ctx, CallbackReady, &CallbackContext{AttemptID: a.id, SessionID: sess.ID(), SessionKey: key})

	if err := sess.Start(ctx); err != nil {
		c.logger.Error("session.start.failed", "attempt_id", a.id, "error", err.Error())
		return
	}
	<-sess.Done()
}

// isCurrent must be called with c.mu held.
func (c *Controller) isCurrent(a *attempt) bool {
	return c.current == a && !a.stopped
}

func (c *Controller) live(a *attempt) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCurrent(a)
}

func (c *Controller) onTaskStatus(ctx context.Context, a *attempt, kind core.TaskKind, status core.TaskStatus) {
	c.mu.Lock()
	if !c.isCurrent(a) {
		c.mu.Unlock()
		return
	}
	c.snapshot.TaskStatus[kind] = status
	c.mu.Unlock()

	c.fire(ctx, CallbackTaskStatus, &CallbackContext{AttemptID: a.id, Task: kind, Status: status})
}

// bind returns session callbacks that only act while a is current.
func (c *Controller) bind(ctx context.Context, a *attempt) session.Handler {
	base := func() *CallbackContext {
		c.mu.Lock()
		defer c.mu.Unlock()
		return &CallbackContext{AttemptID: a.id, SessionID: c.snapshot.SessionID, SessionKey: c.snapshot.SessionKey}
	}
	return session.Handler{
		OnDelta: func(text string) {
			if !c.live(a) {
				return
			}
			cc := base()
			cc.Delta = text
			c.fire(ctx, CallbackDelta, cc)
		},
		OnComplete: func(full string) {
			if !c.live(a) {
				return
			}
			cc := base()
			cc.Text = full
			c.fire(ctx, CallbackComplete, cc)
		},
		OnError: func(err *core.StreamError, partial string) {
			if !c.live(a) {
				return
			}
			cc := base()
			cc.Text = partial
			cc.Err = err
			c.fire(ctx, CallbackError, cc)
		},
	}
}

func (c *Controller) fire(ctx context.Context, t CallbackType, cc *CallbackContext) {
	for _, err := range c.callbacks.ExecuteCallbacks(ctx, t, cc) {
		c.logger.Warn("callback.failed", "attempt_id", cc.AttemptID, "error", err.Error())
	}
}

func notReadyError(out *task.Outcome) error {
	var parts []string
	for _, t := range out.Tasks {
		switch {
		case t.Err() != nil:
			parts = append(parts, fmt.Sprintf("%s: %v", t.Kind(), t.Err()))
		case t.Status() == core.TaskSuccess && !t.Result().HasID():
			parts = append(parts, fmt.Sprintf("%s: missing identifier", t.Kind()))
		}
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return ErrNotReady
	}
	return fmt.Errorf("%w: %s", ErrNotReady, strings.Join(parts, "; "))
}
