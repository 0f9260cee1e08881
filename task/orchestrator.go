package task

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/logging"
)

// Options configures an Orchestrator.
type Options struct {
	// Logger receives one entry per settled task.
	Logger logging.Logger
	// OnStatus observes live status transitions of every task.
	OnStatus StatusFunc
}

// Orchestrator executes a fixed list of sub-tasks concurrently.
//
// Execution model:
//  1. A fresh SubTask is created for every Spec
//  2. Each SubTask runs in its own goroutine
//  3. The barrier waits for all of them, whatever their outcome
//  4. Ready is evaluated once, over the settled tasks
//
// No task's failure cancels the context passed to its siblings. The caller's
// context is the only cancellation source.
type Orchestrator struct {
	specs []Spec
	opts  Options
}

// NewOrchestrator creates an orchestrator for specs.
func NewOrchestrator(specs []Spec, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Orchestrator{specs: append([]Spec(nil), specs...), opts: opts}
}

// Outcome is the settled state of one orchestrator run.
type Outcome struct {
	Tasks []*SubTask
	Ready bool
}

// Statuses returns the status of every task by kind.
func (o *Outcome) Statuses() map[core.TaskKind]core.TaskStatus {
	m := make(map[core.TaskKind]core.TaskStatus, len(o.Tasks))
	for _, t := range o.Tasks {
		m[t.Kind()] = t.Status()
	}
	return m
}

// Results returns the result of every successful task by kind.
func (o *Outcome) Results() map[core.TaskKind]core.TaskResult {
	m := make(map[core.TaskKind]core.TaskResult, len(o.Tasks))
	for _, t := range o.Tasks {
		if t.Status() == core.TaskSuccess {
			m[t.Kind()] = t.Result()
		}
	}
	return m
}

// Errors returns the error of every failed task by kind.
func (o *Outcome) Errors() map[core.TaskKind]error {
	m := make(map[core.TaskKind]error)
	for _, t := range o.Tasks {
		if err := t.Err(); err != nil {
			m[t.Kind()] = err
		}
	}
	return m
}

// Run executes all sub-tasks and blocks until every one has settled.
func (o *Orchestrator) Run(ctx context.Context) *Outcome {
	tasks := make([]*SubTask, len(o.specs))
	for i, spec := range o.specs {
		tasks[i] = NewSubTask(spec, o.opts.OnStatus)
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t *SubTask) {
			defer wg.Done()
			start := time.Now()
			t.Run(ctx)
			o.log(t, time.Since(start))
		}(t)
	}
	wg.Wait()

	return &Outcome{Tasks: tasks, Ready: Ready(tasks)}
}

func (o *Orchestrator) log(t *SubTask, dur time.Duration) {
	if tl, ok := o.opts.Logger.(logging.TaskRunLogger); ok {
		tl.LogTaskRun(t.Kind().String(), dur, t.Err() == nil, t.Err())
		return
	}
	if err := t.Err(); err != nil {
		o.opts.Logger.Warn("task.run.failed", "task", t.Kind().String(), "duration", dur, "error", err.Error())
		return
	}
	o.opts.Logger.Info("task.run.complete", "task", t.Kind().String(), "duration", dur, "has_id", t.Result().HasID())
}

// Ready reports whether every task succeeded and carries its required
// identifier. It is false for an empty list and for any unsettled task.
func Ready(tasks []*SubTask) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status() != core.TaskSuccess || !t.Result().HasID() {
			return false
		}
	}
	return true
}
