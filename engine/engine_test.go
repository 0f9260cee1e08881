package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/internal/testutil"
	"github.com/hupe1980/astrooracle/task"
)

const waitTimeout = 2 * time.Second

var validInputs = core.Inputs{BirthDate: "1990-05-17", Name: "Li", Question: "career?"}

func specsReturning(results map[core.TaskKind]func() (core.TaskResult, error)) SpecFunc {
	return func(core.Inputs) []task.Spec {
		specs := make([]task.Spec, 0, len(core.TaskKinds))
		for _, kind := range core.TaskKinds {
			fn := results[kind]
			specs = append(specs, task.Spec{Kind: kind, Run: func(context.Context) (core.TaskResult, error) {
				return fn()
			}})
		}
		return specs
	}
}

func ok(id string) func() (core.TaskResult, error) {
	return func() (core.TaskResult, error) { return core.TaskResult{ID: id}, nil }
}

func failing(msg string) func() (core.TaskResult, error) {
	return func() (core.TaskResult, error) { return core.TaskResult{}, errors.New(msg) }
}

func allOK() SpecFunc {
	return specsReturning(map[core.TaskKind]func() (core.TaskResult, error){
		core.TaskOrigin:    ok("X1"),
		core.TaskCelestial: ok("Y2"),
		core.TaskInquiry:   ok("Z3"),
	})
}

func noDelay(o *Options) { o.Config.SettleDelay = 0 }

func wait(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestControllerScenarioFramed(t *testing.T) {
	tr := &testutil.ScriptedTransport{Chunks: []string{
		"data:{\"output_text\":\"Hello \"}\n\n",
		"data:{\"output_text\":\"World\"}\n\n",
		"event: completed\n\n",
	}}
	var mu sync.Mutex
	var completed []string
	c := New(allOK(), tr, noDelay, func(o *Options) {
		o.Callbacks = append(o.Callbacks, NewFunctionCallback(CallbackComplete, func(_ context.Context, cc *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			completed = append(completed, cc.Text)
			return nil
		}))
	})

	require.NoError(t, c.Start(context.Background(), validInputs))
	wait(t, c)

	snap := c.Snapshot()
	assert.True(t, snap.Ready)
	assert.Equal(t, "Hello World", snap.VisibleText)
	assert.Equal(t, core.TerminalCompleted, snap.Terminal)
	assert.Equal(t, core.ModeFramedEvents, snap.Mode)
	assert.True(t, snap.Settled)
	assert.NoError(t, snap.LastError)
	for _, kind := range core.TaskKinds {
		assert.Equal(t, core.TaskSuccess, snap.TaskStatus[kind])
	}
	assert.Equal(t, core.SessionKey{OriginID: "X1", CelestialID: "Y2", InquiryID: "Z3", Aux: "career?"}, snap.SessionKey)
	assert.Equal(t, []string{"Hello World"}, completed)

	reqs := tr.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, core.StreamRequest{OriginID: "X1", CelestialID: "Y2", InquiryID: "Z3", Question: "career?", Name: "Li"}, reqs[0])
}

func TestControllerScenarioNotReady(t *testing.T) {
	tr := &testutil.ScriptedTransport{Chunks: []string{"never"}}
	var notReady int
	c := New(specsReturning(map[core.TaskKind]func() (core.TaskResult, error){
		core.TaskOrigin:    ok("X1"),
		core.TaskCelestial: failing("success false"),
		core.TaskInquiry:   ok("Z3"),
	}), tr, noDelay, func(o *Options) {
		o.Callbacks = []Callback{NewFunctionCallback(CallbackNotReady, func(context.Context, *CallbackContext) error {
			notReady++
			return nil
		})}
	})

	require.NoError(t, c.Start(context.Background(), validInputs))
	wait(t, c)

	snap := c.Snapshot()
	assert.False(t, snap.Ready)
	assert.Empty(t, snap.SessionID)
	assert.Empty(t, snap.VisibleText)
	assert.Equal(t, core.TerminalNone, snap.Terminal)
	assert.True(t, snap.Settled)
	assert.ErrorIs(t, snap.LastError, ErrNotReady)
	assert.Contains(t, snap.LastError.Error(), "success false")
	assert.Equal(t, core.TaskError, snap.TaskStatus[core.TaskCelestial])
	assert.Equal(t, core.TaskSuccess, snap.TaskStatus[core.TaskOrigin])
	assert.Empty(t, tr.Requests())
	assert.Equal(t, 1, notReady)
}

func TestControllerMissingIdentifierIsNotReady(t *testing.T) {
	tr := &testutil.ScriptedTransport{}
	c := New(specsReturning(map[core.TaskKind]func() (core.TaskResult, error){
		core.TaskOrigin:    ok("X1"),
		core.TaskCelestial: ok("Y2"),
		core.TaskInquiry:   ok(""),
	}), tr, noDelay)

	require.NoError(t, c.Start(context.Background(), validInputs))
	wait(t, c)

	snap := c.Snapshot()
	assert.False(t, snap.Ready)
	assert.Equal(t, core.TaskSuccess, snap.TaskStatus[core.TaskInquiry])
	assert.Contains(t, snap.LastError.Error(), "missing identifier")
	assert.Empty(t, tr.Requests())
}

func TestControllerScenarioRaw(t *testing.T) {
	c := New(allOK(), &testutil.ScriptedTransport{Chunks: []string{"ab", "cd"}}, noDelay)

	require.NoError(t, c.Start(context.Background(), validInputs))
	wait(t, c)

	snap := c.Snapshot()
	assert.Equal(t, core.ModeRawText, snap.Mode)
	assert.Equal(t, "abcd", snap.VisibleText)
	assert.Equal(t, core.TerminalCompleted, snap.Terminal)
}

func TestControllerStreamErrorKeepsText(t *testing.T) {
	tr := &testutil.ScriptedTransport{
		Chunks: []string{testutil.NewFrameBuilder().Result("half").String()},
		Err:    errors.New("EOF"),
	}
	var errs []error
	c := New(allOK(), tr, noDelay, func(o *Options) {
		o.Callbacks = []Callback{NewFunctionCallback(CallbackError, func(_ context.Context, cc *CallbackContext) error {
			errs = append(errs, cc.Err)
			return nil
		})}
	})

	require.NoError(t, c.Start(context.Background(), validInputs))
	wait(t, c)

	snap := c.Snapshot()
	assert.Equal(t, "half", snap.VisibleText)
	assert.Equal(t, core.TerminalErrored, snap.Terminal)
	require.Error(t, snap.LastError)
	assert.Len(t, errs, 1)
}

func TestControllerRestartCancelsPreviousSession(t *testing.T) {
	tr := testutil.NewPipeTransport()
	c := New(allOK(), tr, noDelay)

	require.NoError(t, c.Start(context.Background(), validInputs))
	first := tr.Next(waitTimeout)
	require.NotNil(t, first)
	require.True(t, first.Send(testutil.NewFrameBuilder().Result("old ").String()))
	require.Eventually(t, func() bool { return c.Snapshot().VisibleText == "old " }, waitTimeout, time.Millisecond)

	next := validInputs
	next.Question = "health?"
	require.NoError(t, c.Start(context.Background(), next))

	select {
	case <-first.Closed():
	case <-time.After(waitTimeout):
		t.Fatal("previous transport still open")
	}
	assert.False(t, first.Send(testutil.NewFrameBuilder().Result("stale").String()))

	second := tr.Next(waitTimeout)
	require.NotNil(t, second)
	assert.Equal(t, "health?", second.Req.Question)
	require.True(t, second.Send(testutil.NewFrameBuilder().Result("new").Completed().String()))
	wait(t, c)

	snap := c.Snapshot()
	assert.Equal(t, "new", snap.VisibleText)
	assert.Equal(t, core.TerminalCompleted, snap.Terminal)
	assert.Equal(t, "health?", snap.SessionKey.Aux)
}

func TestControllerCancel(t *testing.T) {
	tr := testutil.NewPipeTransport()
	c := New(allOK(), tr, noDelay)

	require.NoError(t, c.Start(context.Background(), validInputs))
	pipe := tr.Next(waitTimeout)
	require.NotNil(t, pipe)

	c.Cancel()
	c.Cancel()
	wait(t, c)

	<-pipe.Closed()
	snap := c.Snapshot()
	assert.Equal(t, core.TerminalCancelled, snap.Terminal)
	assert.True(t, snap.Settled)
}

func TestControllerCancelDuringTasks(t *testing.T) {
	release := make(chan struct{})
	specs := func(core.Inputs) []task.Spec {
		return []task.Spec{{Kind: core.TaskOrigin, Run: func(ctx context.Context) (core.TaskResult, error) {
			close(release)
			<-ctx.Done()
			return core.TaskResult{}, ctx.Err()
		}}}
	}
	tr := &testutil.ScriptedTransport{}
	c := New(specs, tr, noDelay)

	require.NoError(t, c.Start(context.Background(), validInputs))
	<-release
	c.Cancel()
	wait(t, c)

	snap := c.Snapshot()
	assert.Equal(t, core.TerminalCancelled, snap.Terminal)
	assert.Empty(t, tr.Requests())
}

func TestControllerRejectsInvalidInputs(t *testing.T) {
	c := New(allOK(), &testutil.ScriptedTransport{}, noDelay)

	err := c.Start(context.Background(), core.Inputs{})
	assert.ErrorIs(t, err, core.ErrInvalidInputs)
	assert.Empty(t, c.Snapshot().AttemptID)
	assert.NoError(t, c.Wait(context.Background()))
}

func TestControllerReportsTaskStatuses(t *testing.T) {
	var mu sync.Mutex
	seen := map[core.TaskKind][]core.TaskStatus{}
	c := New(allOK(), &testutil.ScriptedTransport{}, noDelay, func(o *Options) {
		o.Callbacks = []Callback{NewFunctionCallback(CallbackTaskStatus, func(_ context.Context, cc *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			seen[cc.Task] = append(seen[cc.Task], cc.Status)
			return nil
		})}
	})

	require.NoError(t, c.Start(context.Background(), validInputs))
	wait(t, c)

	for _, kind := range core.TaskKinds {
		assert.Equal(t, []core.TaskStatus{core.TaskLoading, core.TaskSuccess}, seen[kind], kind.String())
	}
}

func TestControllerDefaultQuestion(t *testing.T) {
	tr := &testutil.ScriptedTransport{}
	c := New(allOK(), tr, noDelay)

	require.NoError(t, c.Start(context.Background(), core.Inputs{BirthDate: "1990-05-17"}))
	wait(t, c)

	reqs := tr.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, core.DefaultQuestion, reqs[0].Question)
	assert.Equal(t, core.DefaultName, reqs[0].Name)
	assert.Empty(t, c.Snapshot().SessionKey.Aux)
}

func TestControllerReleasesAttemptContext(t *testing.T) {
	var (
		mu       sync.Mutex
		taskCtxs []context.Context
	)
	specs := func(core.Inputs) []task.Spec {
		out := make([]task.Spec, 0, len(core.TaskKinds))
		for _, kind := range core.TaskKinds {
			id := string(kind)
			out = append(out, task.Spec{Kind: kind, Run: func(ctx context.Context) (core.TaskResult, error) {
				mu.Lock()
				defer mu.Unlock()
				taskCtxs = append(taskCtxs, ctx)
				return core.TaskResult{ID: id}, nil
			}})
		}
		return out
	}
	c := New(specs, &testutil.ScriptedTransport{Chunks: []string{"done"}}, noDelay)

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(parent, validInputs))
	wait(t, c)

	assert.Equal(t, core.TerminalCompleted, c.Snapshot().Terminal)
	assert.NoError(t, parent.Err())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, taskCtxs, len(core.TaskKinds))
	for _, ctx := range taskCtxs {
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	}
}
