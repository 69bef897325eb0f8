package scripting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/jmxsh/internal/goroutineid"
)

// ErrLoopStopped is returned when work is submitted to a closed Runtime.
var ErrLoopStopped = errors.New("event loop not running")

// Runtime serializes all access to one goja.Runtime through an event loop.
// goja is not goroutine-safe, so every use of the VM goes through RunOnLoop,
// RunOnLoopSync or TryRunOnLoopSync.
//
// Go code called from JavaScript already runs on the loop; it must use
// TryRunOnLoopSync rather than RunOnLoopSync, which would deadlock.
type Runtime struct {
	loop     *eventloop.EventLoop
	registry *require.Registry

	// vm is only touched on the loop goroutine
	vm     *goja.Runtime
	loopID atomic.Int64

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

// NewRuntime starts an event loop using registry for require(). A nil
// registry gets a fresh one. The runtime is closed when ctx is done.
func NewRuntime(ctx context.Context, registry *require.Registry) (*Runtime, error) {
	if registry == nil {
		registry = require.NewRegistry()
	}
	rt := &Runtime{
		loop: eventloop.NewEventLoop(
			eventloop.WithRegistry(registry),
			eventloop.EnableConsole(true),
		),
		registry: registry,
		done:     make(chan struct{}),
	}
	rt.loop.Start()

	ready := make(chan struct{})
	if !rt.loop.RunOnLoop(func(vm *goja.Runtime) {
		rt.vm = vm
		rt.loopID.Store(goroutineid.Get())
		close(ready)
	}) {
		rt.loop.Stop()
		return nil, fmt.Errorf("scripting: start: %w", ErrLoopStopped)
	}
	<-ready

	context.AfterFunc(ctx, func() { _ = rt.Close() })
	return rt, nil
}

// Registry returns the require registry.
func (rt *Runtime) Registry() *require.Registry { return rt.registry }

// Done is closed once the runtime is closed.
func (rt *Runtime) Done() <-chan struct{} { return rt.done }

// Close stops the loop, waiting for queued jobs. Repeated calls are no-ops.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	close(rt.done)
	rt.mu.Unlock()
	rt.loop.Stop()
	return nil
}

func (rt *Runtime) running() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return !rt.stopped
}

// RunOnLoop queues fn without waiting. It reports false if the loop is
// stopped.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	if !rt.running() {
		return false
	}
	return rt.loop.RunOnLoop(fn)
}

// RunOnLoopSync queues fn and waits for it. If ctx is done first, the running
// script is interrupted and the wait continues until fn returns, so the VM is
// never left mid-call. There is no other timeout.
func (rt *Runtime) RunOnLoopSync(ctx context.Context, fn func(*goja.Runtime) error) error {
	if !rt.running() {
		return ErrLoopStopped
	}
	result := make(chan error, 1)
	if !rt.loop.RunOnLoop(func(vm *goja.Runtime) {
		// a late interrupt aimed at the previous job may still be pending
		vm.ClearInterrupt()
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		result <- fn(vm)
	}) {
		return ErrLoopStopped
	}

	select {
	case err := <-result:
		return err
	case <-rt.done:
		return ErrLoopStopped
	case <-ctx.Done():
	}
	rt.vm.Interrupt(ctx.Err())
	select {
	case err := <-result:
		return err
	case <-rt.done:
		return ErrLoopStopped
	}
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (rt *Runtime) OnLoop() bool {
	id := rt.loopID.Load()
	return id != 0 && id == goroutineid.Get()
}

// TryRunOnLoopSync runs fn directly when called from the loop goroutine, and
// like RunOnLoopSync otherwise.
func (rt *Runtime) TryRunOnLoopSync(ctx context.Context, fn func(*goja.Runtime) error) error {
	if !rt.running() {
		return ErrLoopStopped
	}
	if rt.OnLoop() {
		return fn(rt.vm)
	}
	return rt.RunOnLoopSync(ctx, fn)
}
