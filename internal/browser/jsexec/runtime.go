// internal/browser/jsexec/runtime.go
package jsexec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// DefaultTimeout bounds a single script or callback when the caller's
// context carries no deadline.
const DefaultTimeout = 5 * time.Second

// Runtime owns one goja VM on a goja_nodejs event loop. Every VM access is
// serialized onto the loop goroutine; Run and Execute block until the loop
// has executed the work.
type Runtime struct {
	loop    *eventloop.EventLoop
	vm      *goja.Runtime // loop goroutine only, except Interrupt/ClearInterrupt
	logger  *zap.Logger
	tracker *JobTracker
	timeout time.Duration
	depth   int // nesting of interruptible sections; loop goroutine only

	mu        sync.Mutex
	jobs      map[int64]func() // outstanding timers, keyed by id; value cancels the loop timer
	nextJobID int64
	closed    bool
	errs      []*ScriptError
	console   []schemas.ConsoleLog
	closeOnce sync.Once
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithTimeout sets the per-script budget used when a context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithTracker shares a session-wide job tracker.
func WithTracker(t *JobTracker) Option {
	return func(r *Runtime) {
		if t != nil {
			r.tracker = t
		}
	}
}

// NewRuntime starts the event loop and installs the tracked timer functions
// and console on the global object.
func NewRuntime(logger *zap.Logger, opts ...Option) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runtime{
		loop:    eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		logger:  logger.Named("jsexec"),
		tracker: NewJobTracker(),
		timeout: DefaultTimeout,
		jobs:    make(map[int64]func()),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.loop.Start()
	ready := make(chan struct{})
	if !r.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer close(ready)
		r.vm = vm
		vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
		r.installTimers(vm)
		r.installConsole(vm)
	}) {
		return nil, ErrClosed
	}
	<-ready
	return r, nil
}

// Tracker returns the job tracker timers and Go work are counted on.
func (r *Runtime) Tracker() *JobTracker { return r.tracker }

// Run executes fn on the loop goroutine and waits for it. A script running
// inside fn is interrupted when ctx ends or the default timeout elapses.
func (r *Runtime) Run(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result := make(chan error, 1)
	started := make(chan struct{})
	if !r.isOpen() || !r.loop.RunOnLoop(func(vm *goja.Runtime) {
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		close(started)
		result <- r.interruptible(ctx, func() error { return fn(vm) })
	}) {
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		select {
		case <-started:
			// fn is running and will be interrupted.
			return <-result
		default:
			// The loop is busy with other work; fn will observe ctx and skip.
			return fmt.Errorf("waiting for the event loop: %w", ctx.Err())
		}
	}
}

// Execute runs script as a classic script named source. Exceptions and
// interruptions come back as *ScriptError and are also recorded.
func (r *Runtime) Execute(ctx context.Context, source, script string) (goja.Value, error) {
	var value goja.Value
	err := r.Run(ctx, func(vm *goja.Runtime) error {
		v, err := vm.RunScript(source, script)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		se := NewScriptError(source, err)
		r.recordError(se)
		return nil, se
	}
	return value, nil
}

// interruptible runs fn on the loop with a watcher that interrupts the VM
// when ctx ends. The interrupt flag is cleared before the outermost section
// returns; nested sections (a listener run by a script's click()) share the
// outer deadline.
func (r *Runtime) interruptible(ctx context.Context, fn func() error) error {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > 1 {
		return fn()
	}

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ErrScriptTimeout)
		case <-stop:
		}
	}()

	err := fn()
	close(stop)
	<-exited
	r.vm.ClearInterrupt()
	return err
}

// Invoke calls a JS callback from loop-side code (timers, event handlers,
// request completions) under the default timeout. Exceptions are logged
// and recorded, never propagated: one failing callback must not stop the page.
// Must be called on the loop goroutine.
func (r *Runtime) Invoke(source string, fn func() error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.interruptible(ctx, fn); err != nil {
		r.ReportError(source, err)
	}
}

// ReportError records an uncaught exception raised outside Execute.
func (r *Runtime) ReportError(source string, err error) {
	r.recordError(NewScriptError(source, err))
}

func (r *Runtime) recordError(se *ScriptError) {
	r.logger.Debug("Uncaught script error.", zap.String("source", se.Source), zap.String("error", se.Error()))
	r.mu.Lock()
	r.errs = append(r.errs, se)
	r.mu.Unlock()
}

// Errors returns the script errors recorded so far.
func (r *Runtime) Errors() []*ScriptError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ScriptError(nil), r.errs...)
}

// ConsoleLogs returns what page script wrote to the console.
func (r *Runtime) ConsoleLogs() []schemas.ConsoleLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.ConsoleLog(nil), r.console...)
}

// Go runs work off the loop, then runs the continuation it returns on the
// loop. The pair counts as one background job until the continuation has
// run, or until the runtime closes.
func (r *Runtime) Go(source string, work func() func(vm *goja.Runtime)) {
	id, ok := r.track(nil)
	if !ok {
		return
	}
	go func() {
		cont := work()
		queued := r.loop.RunOnLoop(func(vm *goja.Runtime) {
			defer r.finish(id)
			if cont != nil && r.isOpen() {
				r.Invoke(source, func() error {
					cont(vm)
					return nil
				})
			}
		})
		if !queued {
			r.finish(id)
		}
	}()
}

// Post queues fn on the loop without waiting and without tracking it.
// It reports false once the runtime is closed.
func (r *Runtime) Post(fn func(vm *goja.Runtime)) bool {
	if !r.isOpen() {
		return false
	}
	return r.loop.RunOnLoop(fn)
}

// SetTimeout schedules fn on the loop after delay; the timer is pending
// until it fires or is cleared. Must be called on the loop goroutine.
func (r *Runtime) SetTimeout(fn func(), delay time.Duration) int64 {
	var timer *eventloop.Timer
	id, ok := r.track(func() { r.loop.ClearTimeout(timer) })
	if !ok {
		return 0
	}
	timer = r.loop.SetTimeout(func(vm *goja.Runtime) {
		if !r.isPending(id) {
			return
		}
		defer r.finish(id)
		fn()
	}, delay)
	return id
}

// SetInterval schedules fn repeatedly; an interval stays pending until cleared.
func (r *Runtime) SetInterval(fn func(), delay time.Duration) int64 {
	var interval *eventloop.Interval
	id, ok := r.track(func() { r.loop.ClearInterval(interval) })
	if !ok {
		return 0
	}
	interval = r.loop.SetInterval(func(vm *goja.Runtime) {
		if r.isPending(id) {
			fn()
		}
	}, delay)
	return id
}

// ClearTimer cancels a timeout or interval. Unknown ids are ignored.
func (r *Runtime) ClearTimer(id int64) {
	r.mu.Lock()
	cancel, ok := r.jobs[id]
	r.mu.Unlock()
	if ok && cancel != nil {
		cancel()
	}
	r.finish(id)
}

// track registers a job. cancel, when non-nil, is run on Close.
func (r *Runtime) track(cancel func()) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	r.nextJobID++
	id := r.nextJobID
	r.jobs[id] = cancel
	r.tracker.Track()
	return id, true
}

func (r *Runtime) isPending(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

// finish releases a job exactly once.
func (r *Runtime) finish(id int64) {
	r.mu.Lock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	r.mu.Unlock()
	if ok {
		r.tracker.Done()
	}
}

func (r *Runtime) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// Close stops the loop and releases every job still outstanding. It is
// idempotent and safe to call from any goroutine except the loop's own.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		pending := len(r.jobs)
		r.jobs = make(map[int64]func())
		r.mu.Unlock()

		if r.vm != nil {
			r.vm.Interrupt(ErrClosed)
		}
		r.loop.Terminate()
		for i := 0; i < pending; i++ {
			r.tracker.Done()
		}
		r.logger.Debug("Runtime closed.", zap.Int("released_jobs", pending))
	})
}

func (r *Runtime) installTimers(vm *goja.Runtime) {
	schedule := func(repeat bool) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
			if delay < 0 {
				delay = 0
			}
			var run func()
			name := "setTimeout"
			if repeat {
				name = "setInterval"
			}
			if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
				extra := append([]goja.Value(nil), call.Arguments[min(2, len(call.Arguments)):]...)
				run = func() {
					r.Invoke(name, func() error {
						_, err := fn(goja.Undefined(), extra...)
						return err
					})
				}
			} else {
				// A string argument is evaluated as code, as legacy pages expect.
				code := call.Argument(0).String()
				run = func() {
					r.Invoke(name, func() error {
						_, err := vm.RunString(code)
						return err
					})
				}
			}
			if repeat {
				return vm.ToValue(r.SetInterval(run, delay))
			}
			return vm.ToValue(r.SetTimeout(run, delay))
		}
	}
	clear := func(call goja.FunctionCall) goja.Value {
		if id := call.Argument(0).ToInteger(); id > 0 {
			r.ClearTimer(id)
		}
		return goja.Undefined()
	}

	global := vm.GlobalObject()
	_ = global.Set("setTimeout", schedule(false))
	_ = global.Set("setInterval", schedule(true))
	_ = global.Set("clearTimeout", clear)
	_ = global.Set("clearInterval", clear)
}

func (r *Runtime) installConsole(vm *goja.Runtime) {
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		level := level
		_ = console.Set(level, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			text := strings.Join(parts, " ")
			r.logger.Debug("console."+level, zap.String("text", text))
			r.mu.Lock()
			r.console = append(r.console, schemas.ConsoleLog{Type: level, Timestamp: time.Now(), Text: text})
			r.mu.Unlock()
			return goja.Undefined()
		})
	}
	_ = vm.GlobalObject().Set("console", console)
}
