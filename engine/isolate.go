package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"rogchap.com/v8go"

	guestvmerrors "github.com/varhub/guestvm/errors"
)

// Isolate wraps a single V8 isolate and its two contexts.
//
// The "main" context is where guest modules execute and where the
// TimerBridge and ValueBridge install their globals. The "safe" context
// never sees guest-installed globals; it only runs host-authored helper
// scripts (the async/error envelope wrapper, property enumeration) so
// that a guest script redefining, say,
// Object.prototype.hasOwnProperty cannot corrupt host-side reflection.
type Isolate struct {
	v8iso *v8go.Isolate
	main  *v8go.Context
	safe  *v8go.Context

	mu       sync.Mutex // serializes all guest-context entry
	disposed atomic.Bool

	wallNanos atomic.Int64 // accumulated guest execution time from completed Enter calls
	enteredAt atomic.Int64 // unix nanos at which the current Enter started, 0 if idle
}

// Options configures isolate creation.
type Options struct {
	// MemoryLimitMB caps the V8 heap. Zero means use V8's defaults.
	MemoryLimitMB uint64
}

// New creates a V8 isolate with a main and a safe context.
func New(opts Options) (*Isolate, error) {
	var v8iso *v8go.Isolate
	if opts.MemoryLimitMB > 0 {
		v8iso = v8go.NewIsolateWith(0, opts.MemoryLimitMB*1024*1024)
	} else {
		v8iso = v8go.NewIsolate()
	}

	main := v8go.NewContext(v8iso)
	safe := v8go.NewContext(v8iso)

	return &Isolate{
		v8iso: v8iso,
		main:  main,
		safe:  safe,
	}, nil
}

// Main returns the guest-facing context.
func (i *Isolate) Main() *v8go.Context { return i.main }

// Safe returns the host-only reflection context.
func (i *Isolate) Safe() *v8go.Context { return i.safe }

// V8 returns the underlying v8go isolate, for packages (bridge, program)
// that need to compile scripts or construct function templates directly.
func (i *Isolate) V8() *v8go.Isolate { return i.v8iso }

// Disposed reports whether Dispose has already run.
func (i *Isolate) Disposed() bool { return i.disposed.Load() }

// Enter serializes guest-context access across the Program: V8 isolates
// may only be entered by one goroutine at a time. It also accumulates the
// wall-clock time spent inside fn into the isolate's quota counter, which
// QuotaWatchdog samples periodically.
func (i *Isolate) Enter(fn func() error) error {
	if i.disposed.Load() {
		return guestvmerrors.IsolateDisposed()
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	i.enteredAt.Store(start.UnixNano())
	err := fn()
	i.enteredAt.Store(0)
	i.wallNanos.Add(int64(time.Since(start)))
	return err
}

// WallTime returns the guest execution time accumulated so far: every
// completed Enter call, plus however long the current one (if any) has
// been running. The live component is what lets the watchdog notice a
// single call that never returns, such as an infinite loop, rather than
// only budgeting time across many short calls.
func (i *Isolate) WallTime() time.Duration {
	total := i.wallNanos.Load()
	if started := i.enteredAt.Load(); started != 0 {
		total += time.Now().UnixNano() - started
	}
	return time.Duration(total)
}

// Terminate forcefully stops any JavaScript currently executing in this
// isolate. Safe to call from any goroutine, including while another
// goroutine holds Enter's lock.
func (i *Isolate) Terminate() {
	i.v8iso.TerminateExecution()
}

// Dispose releases the contexts and the isolate. Idempotent.
func (i *Isolate) Dispose() {
	if !i.disposed.CompareAndSwap(false, true) {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.main != nil {
		i.main.Close()
	}
	if i.safe != nil {
		i.safe.Close()
	}
	if i.v8iso != nil {
		i.v8iso.Dispose()
	}
}
