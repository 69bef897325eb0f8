package scripting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestRuntime_Close(t *testing.T) {
	rt := newTestRuntime(t)
	if rt.Registry() == nil {
		t.Error("registry should not be nil")
	}

	if err := rt.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	select {
	case <-rt.Done():
	default:
		t.Error("Done channel should be closed")
	}

	err := rt.RunOnLoopSync(context.Background(), func(*goja.Runtime) error { return nil })
	if !errors.Is(err, ErrLoopStopped) {
		t.Errorf("expected ErrLoopStopped, got %v", err)
	}
	if rt.RunOnLoop(func(*goja.Runtime) {}) {
		t.Error("RunOnLoop should report false after Close")
	}
}

func TestRuntime_ClosedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rt, err := NewRuntime(ctx, nil)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	cancel()

	select {
	case <-rt.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runtime not closed after context cancel")
	}
}

func TestRuntime_RunOnLoopSync(t *testing.T) {
	rt := newTestRuntime(t)

	var got int64
	err := rt.RunOnLoopSync(context.Background(), func(vm *goja.Runtime) error {
		v, err := vm.RunString("6 * 7")
		if err != nil {
			return err
		}
		got = v.ToInteger()
		return nil
	})
	if err != nil {
		t.Fatalf("RunOnLoopSync failed: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	want := errors.New("boom")
	if err := rt.RunOnLoopSync(context.Background(), func(*goja.Runtime) error { return want }); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestRuntime_RunOnLoopSyncInterrupts(t *testing.T) {
	rt := newTestRuntime(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := rt.RunOnLoopSync(ctx, func(vm *goja.Runtime) error {
		_, err := vm.RunString("for (;;) {}")
		return err
	})
	var interrupted *goja.InterruptedError
	if !errors.As(err, &interrupted) {
		t.Fatalf("expected an interrupt, got %v", err)
	}

	// the next job runs normally
	err = rt.RunOnLoopSync(context.Background(), func(vm *goja.Runtime) error {
		_, err := vm.RunString("1")
		return err
	})
	if err != nil {
		t.Errorf("job after interrupt failed: %v", err)
	}
}

func TestRuntime_RunOnLoopSyncCancelledBeforeStart(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := rt.RunOnLoopSync(ctx, func(*goja.Runtime) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ran {
		t.Error("job should not run with a cancelled context")
	}
}

func TestRuntime_TryRunOnLoopSync(t *testing.T) {
	rt := newTestRuntime(t)

	if rt.OnLoop() {
		t.Error("test goroutine should not be the loop")
	}

	var nested bool
	err := rt.RunOnLoopSync(context.Background(), func(*goja.Runtime) error {
		if !rt.OnLoop() {
			t.Error("job should run on the loop")
		}
		// would deadlock if it queued
		return rt.TryRunOnLoopSync(context.Background(), func(*goja.Runtime) error {
			nested = true
			return nil
		})
	})
	if err != nil {
		t.Fatalf("nested TryRunOnLoopSync failed: %v", err)
	}
	if !nested {
		t.Error("nested job did not run")
	}
}

func TestRuntime_Concurrent(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RunOnLoopSync(context.Background(), func(vm *goja.Runtime) error {
		return vm.Set("n", 0)
	}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rt.RunOnLoopSync(context.Background(), func(vm *goja.Runtime) error {
				_, err := vm.RunString("n++")
				return err
			})
		}()
	}
	wg.Wait()

	var n int64
	_ = rt.RunOnLoopSync(context.Background(), func(vm *goja.Runtime) error {
		n = vm.Get("n").ToInteger()
		return nil
	})
	if n != 20 {
		t.Errorf("expected 20 increments, got %d", n)
	}
}
