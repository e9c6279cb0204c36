package program

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/varhub/guestvm/bridge"
	guestvmerrors "github.com/varhub/guestvm/errors"
)

// TestHostFunctionSyncReturnAndThrow exercises the synchronous half of
// CreateMaybeAsyncFunctionDeref: a host function that returns a plain
// value, and one that throws, each observed directly (no await) from
// guest code that calls them back to back.
func TestHostFunctionSyncReturnAndThrow(t *testing.T) {
	provider := mapProvider{
		"main.js": `
			export function tryBoth() {
				var sum = add(2, 3);
				try {
					boom();
					return { sum: sum, caught: null };
				} catch (e) {
					return { sum: sum, caught: e };
				}
			}
		`,
	}
	p := newTestProgram(t, provider, Options{})

	if err := p.InstallHostFunction("add", func(args []any) (any, error, <-chan bridge.AsyncResult) {
		return args[0].(float64) + args[1].(float64), nil, nil
	}); err != nil {
		t.Fatalf("InstallHostFunction(add): %v", err)
	}
	if err := p.InstallHostFunction("boom", func(args []any) (any, error, <-chan bridge.AsyncResult) {
		return nil, guestvmerrors.NewGuestError(float64(99)), nil
	}); err != nil {
		t.Fatalf("InstallHostFunction(boom): %v", err)
	}

	mod, err := p.GetModule(context.Background(), "main.js")
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}

	result, err := mod.CallMethod(context.Background(), "tryBoth", nil)
	if err != nil {
		t.Fatalf("CallMethod(tryBoth): %v", err)
	}
	obj, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result = %#v, want map", result)
	}
	if obj["sum"] != float64(5) {
		t.Fatalf("sum = %v, want 5", obj["sum"])
	}
	if obj["caught"] != float64(99) {
		t.Fatalf("caught = %v (%T), want the exact raw value 99", obj["caught"], obj["caught"])
	}
}

// TestHostFunctionAsyncRejectionPreservesValue exercises the promise half:
// a host function whose pending channel rejects must surface to a guest
// `await` as a thrown value indistinguishable from a synchronous throw,
// and must preserve the exact rejected value rather than a stringified
// message.
func TestHostFunctionAsyncRejectionPreservesValue(t *testing.T) {
	provider := mapProvider{
		"main.js": `
			export async function callIt() {
				try {
					await deferredBoom();
					return "did not throw";
				} catch (e) {
					return { caught: e };
				}
			}
		`,
	}
	p := newTestProgram(t, provider, Options{})

	if err := p.InstallHostFunction("deferredBoom", func(args []any) (any, error, <-chan bridge.AsyncResult) {
		pending := make(chan bridge.AsyncResult, 1)
		go func() {
			time.Sleep(5 * time.Millisecond)
			pending <- bridge.AsyncResult{Value: float64(7), Rejected: true}
		}()
		return nil, nil, pending
	}); err != nil {
		t.Fatalf("InstallHostFunction(deferredBoom): %v", err)
	}

	mod, err := p.GetModule(context.Background(), "main.js")
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := mod.CallMethod(ctx, "callIt", nil)
	if err != nil {
		t.Fatalf("CallMethod(callIt): %v", err)
	}
	obj, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result = %#v, want the caught branch", result)
	}
	if obj["caught"] != float64(7) {
		t.Fatalf("caught = %v (%T), want the exact rejected value 7", obj["caught"], obj["caught"])
	}
}

// TestHostFunctionAsyncResolves covers the resolving (non-rejecting) half
// of the promise path.
func TestHostFunctionAsyncResolves(t *testing.T) {
	provider := mapProvider{
		"main.js": `
			export async function callIt() {
				return await deferredValue();
			}
		`,
	}
	p := newTestProgram(t, provider, Options{})

	if err := p.InstallHostFunction("deferredValue", func(args []any) (any, error, <-chan bridge.AsyncResult) {
		pending := make(chan bridge.AsyncResult, 1)
		go func() {
			time.Sleep(5 * time.Millisecond)
			pending <- bridge.AsyncResult{Value: "done"}
		}()
		return nil, nil, pending
	}); err != nil {
		t.Fatalf("InstallHostFunction(deferredValue): %v", err)
	}

	mod, err := p.GetModule(context.Background(), "main.js")
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := mod.CallMethod(ctx, "callIt", nil)
	if err != nil {
		t.Fatalf("CallMethod(callIt): %v", err)
	}
	if result != "done" {
		t.Fatalf("result = %v, want done", result)
	}
}

// TestHostFunctionDisposedProgramRejects confirms CreateMaybeAsyncFunctionDeref
// refuses to register a new host function once the Program is disposed.
func TestHostFunctionDisposedProgramRejects(t *testing.T) {
	provider := mapProvider{"main.js": `export const ok = true;`}
	p := newTestProgram(t, provider, Options{})
	if err := p.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	_, err := p.CreateMaybeAsyncFunctionDeref(func(args []any) (any, error, <-chan bridge.AsyncResult) {
		return nil, nil, nil
	})
	var ge *guestvmerrors.Error
	if !stderrors.As(err, &ge) || ge.Kind != guestvmerrors.KindIsolateDisposed {
		t.Fatalf("expected IsolateDisposed, got %v", err)
	}
}
