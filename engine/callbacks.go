package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/astrooracle/core"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Available callback types:
//   - TaskStatus: a sub-task changed status
//   - Ready/NotReady: the fan-in barrier completed
//   - Delta: visible text was appended
//   - Complete/Error: the stream session reached its terminal state
type CallbackType string

const (
	// CallbackTaskStatus is triggered on every sub-task status transition.
	CallbackTaskStatus CallbackType = "task_status"

	// CallbackReady is triggered when all sub-tasks succeeded with
	// identifiers, right before the stream session starts.
	CallbackReady CallbackType = "ready"

	// CallbackNotReady is triggered when the readiness predicate fails.
	// No stream session is started for the attempt.
	CallbackNotReady CallbackType = "not_ready"

	// CallbackDelta is triggered for every text fragment, in order.
	CallbackDelta CallbackType = "delta"

	// CallbackComplete is triggered once with the full text.
	CallbackComplete CallbackType = "complete"

	// CallbackError is triggered once when the stream fails.
	CallbackError CallbackType = "error"
)

// CallbackContext provides the information a callback may need. Fields that
// do not apply to the callback type are zero.
type CallbackContext struct {
	CallbackType CallbackType
	AttemptID    string
	SessionID    string
	SessionKey   core.SessionKey

	// Task and Status are set for CallbackTaskStatus.
	Task   core.TaskKind
	Status core.TaskStatus

	// Delta is set for CallbackDelta.
	Delta string

	// Text is the full text for CallbackComplete and the partial text for
	// CallbackError.
	Text string

	// Err is set for CallbackError and CallbackNotReady.
	Err error
}

// Callback defines the interface for controller lifecycle hooks.
//
// Callbacks run synchronously and one at a time. Returned errors are logged
// and never stop the controller.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	onDone := NewFunctionCallback(CallbackComplete, func(ctx context.Context, cc *CallbackContext) error {
//		fmt.Println(cc.Text)
//		return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle events to registered callbacks.
//
// Callbacks of one type run in registration order. Execution is serialized
// across all types, so callbacks never run concurrently with each other.
// Registration is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
	execMu    sync.Mutex
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager(callbacks ...Callback) *CallbackManager {
	cm := &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
	for _, cb := range callbacks {
		cm.RegisterCallback(cb)
	}
	return cm
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType. All
// callbacks run even if some fail.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) []error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()
	if len(callbacks) == 0 {
		return nil
	}

	callbackCtx.CallbackType = callbackType

	cm.execMu.Lock()
	defer cm.execMu.Unlock()

	var errs []error
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s callback: %w", callbackType, err))
		}
	}
	return errs
}

// LoggingCallback forwards a formatted line for each event to a logging
// function.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackTaskStatus, func(m string) { log.Print(m) })
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event with its attempt and the type specific detail.
func (c *LoggingCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	detail := ""
	switch c.callbackType {
	case CallbackTaskStatus:
		detail = fmt.Sprintf("%s=%s", callbackCtx.Task, callbackCtx.Status)
	case CallbackDelta:
		detail = fmt.Sprintf("%d bytes", len(callbackCtx.Delta))
	case CallbackComplete:
		detail = fmt.Sprintf("%d bytes total", len(callbackCtx.Text))
	case CallbackError, CallbackNotReady:
		detail = fmt.Sprintf("%v", callbackCtx.Err)
	case CallbackReady:
		detail = callbackCtx.SessionKey.String()
	}
	c.logger(fmt.Sprintf("[%s] attempt=%s %s", c.callbackType, callbackCtx.AttemptID, detail))
	return nil
}
