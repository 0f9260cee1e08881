package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/astrooracle/core"
)

// Func performs one remote computation. A returned error, or a panic, marks
// the task as failed.
type Func func(ctx context.Context) (core.TaskResult, error)

// Spec describes a sub-task before it is run.
type Spec struct {
	Kind core.TaskKind
	Run  Func
}

// StatusFunc observes status transitions. It may be invoked concurrently from
// different tasks; transitions of a single task are delivered in order.
type StatusFunc func(kind core.TaskKind, status core.TaskStatus)

// SubTask is one remote computation with a monotonic status:
// Idle -> Loading -> Success | Error.
type SubTask struct {
	kind     core.TaskKind
	fn       Func
	onStatus StatusFunc

	mu     sync.RWMutex
	status core.TaskStatus
	result core.TaskResult
	err    error
}

// NewSubTask creates an Idle sub-task from spec.
func NewSubTask(spec Spec, onStatus StatusFunc) *SubTask {
	return &SubTask{kind: spec.Kind, fn: spec.Run, onStatus: onStatus}
}

// Kind returns which computation the task performs.
func (t *SubTask) Kind() core.TaskKind { return t.kind }

// Status returns the current status.
func (t *SubTask) Status() core.TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Result returns the captured result. It is the zero value unless the
// status is Success.
func (t *SubTask) Result() core.TaskResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// Err returns the captured error. It is nil unless the status is Error.
func (t *SubTask) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Run executes the computation once and blocks until it settles. Errors and
// panics are captured in the task; Run itself never fails. Calling Run on a
// task that already left Idle is a no-op.
func (t *SubTask) Run(ctx context.Context) {
	if !t.transition(core.TaskIdle, core.TaskLoading) {
		return
	}

	res, err := t.call(ctx)

	t.mu.Lock()
	if err != nil {
		t.status, t.err = core.TaskError, err
	} else {
		t.status, t.result = core.TaskSuccess, res
	}
	status := t.status
	t.mu.Unlock()

	t.notify(status)
}

func (t *SubTask) call(ctx context.Context) (res core.TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = core.TaskResult{}, fmt.Errorf("task %s panicked: %v", t.kind, r)
		}
	}()
	if t.fn == nil {
		return core.TaskResult{}, fmt.Errorf("task %s has no function", t.kind)
	}
	if err := ctx.Err(); err != nil {
		return core.TaskResult{}, err
	}
	return t.fn(ctx)
}

func (t *SubTask) transition(from, to core.TaskStatus) bool {
	t.mu.Lock()
	if t.status != from {
		t.mu.Unlock()
		return false
	}
	t.status = to
	t.mu.Unlock()
	t.notify(to)
	return true
}

func (t *SubTask) notify(status core.TaskStatus) {
	if t.onStatus != nil {
		t.onStatus(t.kind, status)
	}
}
