package jsexec_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/alertbench/internal/browser/jsexec"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestRuntime is a helper to set up a runtime that is closed after the test.
func newTestRuntime(t *testing.T, opts ...jsexec.Option) *jsexec.Runtime {
	t.Helper()
	rt, err := jsexec.NewRuntime(zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

// collect installs a record(x) global and returns a reader for what it saw.
func collect(t *testing.T, rt *jsexec.Runtime) func() []string {
	t.Helper()
	var mu sync.Mutex
	var seen []string
	require.NoError(t, rt.Run(context.Background(), func(vm *goja.Runtime) error {
		return vm.Set("record", func(s string) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		})
	}))
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func TestExecute_Basic(t *testing.T) {
	rt := newTestRuntime(t)

	v, err := rt.Execute(context.Background(), "inline", `(5 + 5) * 2`)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v.Export())
}

func TestExecute_ExceptionIsScriptError(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := rt.Execute(context.Background(), "page.js", `null.foo`)
	require.Error(t, err)
	var se *jsexec.ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "page.js", se.Source)
	assert.Equal(t, "TypeError", se.Name)
	assert.False(t, se.Interrupted)

	_, err = rt.Execute(context.Background(), "thrown", `throw "plain"`)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "plain", se.Message)
	assert.Empty(t, se.Name)

	_, err = rt.Execute(context.Background(), "syntax", `var = ;`)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "SyntaxError", se.Name)

	assert.Len(t, rt.Errors(), 3)

	// The VM keeps working after an error.
	v, err := rt.Execute(context.Background(), "after", `1 + 1`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Export())
}

func TestExecute_DeadlineInterrupts(t *testing.T) {
	rt := newTestRuntime(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rt.Execute(ctx, "loop", `while (true) {}`)
	require.Error(t, err)
	var se *jsexec.ScriptError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Interrupted)
	assert.True(t, errors.Is(err, jsexec.ErrScriptTimeout))

	// The interrupt flag does not leak into the next run.
	v, err := rt.Execute(context.Background(), "next", `"ok"`)
	require.NoError(t, err)
	assert.Equal(t, "ok", v.Export())
}

func TestExecute_DefaultTimeout(t *testing.T) {
	rt := newTestRuntime(t, jsexec.WithTimeout(30*time.Millisecond))
	_, err := rt.Execute(context.Background(), "loop", `for (;;) {}`)
	require.ErrorIs(t, err, jsexec.ErrScriptTimeout)
}

func TestTimersRunInOrderAndAreTracked(t *testing.T) {
	rt := newTestRuntime(t)
	seen := collect(t, rt)

	// Counted inside the same loop turn, before the 0ms timer can fire.
	var pending int
	err := rt.Run(context.Background(), func(vm *goja.Runtime) error {
		_, err := vm.RunString(`
			setTimeout(function() { record("b"); }, 20);
			setTimeout(function(x) { record(x); }, 0, "a");
			var cancelled = setTimeout(function() { record("never"); }, 5);
			clearTimeout(cancelled);
			setTimeout("record('string')", 30);
		`)
		pending = rt.Tracker().Pending()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Tracker().WaitIdle(ctx))
	assert.Equal(t, []string{"a", "b", "string"}, seen())
	assert.Equal(t, 0, rt.Tracker().Pending())
}

func TestIntervalPendingUntilCleared(t *testing.T) {
	rt := newTestRuntime(t)
	seen := collect(t, rt)

	_, err := rt.Execute(context.Background(), "interval", `
		var n = 0;
		var id = setInterval(function() {
			n++;
			record("tick" + n);
			if (n == 3) clearInterval(id);
		}, 5);
	`)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Tracker().WaitIdle(ctx))
	assert.Equal(t, []string{"tick1", "tick2", "tick3"}, seen())
}

func TestTimerCallbackErrorsAreRecorded(t *testing.T) {
	rt := newTestRuntime(t)
	seen := collect(t, rt)

	_, err := rt.Execute(context.Background(), "timers", `
		setTimeout(function() { throw new Error("boom"); }, 0);
		setTimeout(function() { record("still runs"); }, 5);
	`)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Tracker().WaitIdle(ctx))
	assert.Equal(t, []string{"still runs"}, seen())
	require.Len(t, rt.Errors(), 1)
	assert.Equal(t, "setTimeout", rt.Errors()[0].Source)
	assert.Equal(t, "boom", rt.Errors()[0].Message)
}

func TestGoRunsContinuationOnLoop(t *testing.T) {
	rt := newTestRuntime(t)
	seen := collect(t, rt)

	release := make(chan struct{})
	rt.Go("xhr", func() func(vm *goja.Runtime) {
		<-release
		return func(vm *goja.Runtime) {
			_, _ = vm.RunString(`record("done")`)
		}
	})
	assert.Equal(t, 1, rt.Tracker().Pending())

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rt.Tracker().WaitIdle(short), context.DeadlineExceeded)

	close(release)
	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	require.NoError(t, rt.Tracker().WaitIdle(ctx))
	assert.Equal(t, []string{"done"}, seen())
}

func TestCloseReleasesJobs(t *testing.T) {
	tracker := jsexec.NewJobTracker()
	rt, err := jsexec.NewRuntime(zaptest.NewLogger(t), jsexec.WithTracker(tracker))
	require.NoError(t, err)

	_, err = rt.Execute(context.Background(), "timers", `
		setTimeout(function() {}, 60000);
		setInterval(function() {}, 60000);
	`)
	require.NoError(t, err)
	assert.Equal(t, 2, tracker.Pending())

	rt.Close()
	rt.Close()
	assert.Equal(t, 0, tracker.Pending())

	_, err = rt.Execute(context.Background(), "after", `1`)
	assert.ErrorIs(t, err, jsexec.ErrClosed)
	assert.False(t, rt.Post(func(*goja.Runtime) {}))
}

func TestConsoleIsCaptured(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.Execute(context.Background(), "console", `console.log("a", 1); console.warn("b")`)
	require.NoError(t, err)

	logs := rt.ConsoleLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, "log", logs[0].Type)
	assert.Equal(t, "a 1", logs[0].Text)
	assert.Equal(t, "warn", logs[1].Type)
}

func TestJobTracker(t *testing.T) {
	tr := jsexec.NewJobTracker()
	require.NoError(t, tr.WaitIdle(context.Background()), "idle tracker returns immediately")

	tr.Track()
	tr.Track()
	done := make(chan error, 1)
	go func() { done <- tr.WaitIdle(context.Background()) }()

	tr.Done()
	select {
	case <-done:
		t.Fatal("WaitIdle returned with a job outstanding")
	case <-time.After(20 * time.Millisecond):
	}
	tr.Done()
	require.NoError(t, <-done)

	tr.Done()
	assert.Equal(t, 0, tr.Pending(), "extra Done calls are ignored")
}
