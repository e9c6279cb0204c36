package program

import (
	"context"
	stderrors "errors"

	"rogchap.com/v8go"

	"github.com/varhub/guestvm/bridge"
	guestvmerrors "github.com/varhub/guestvm/errors"
)

// CreateMaybeAsyncFunctionDeref builds the guest-callable FunctionTemplate
// the spec's ValueBridge names: f runs synchronously on the calling
// goroutine and may return a plain value, an error (thrown to the guest),
// or a pending channel (bridge.AsyncResult) signaling that the result
// should surface to the guest as a promise. The caller installs the
// returned template wherever it wants the function reachable from guest
// code; InstallHostFunction is a convenience for the common case of
// putting it directly on main's global.
//
// A host function that wants a guest-visible throw to carry an exact
// value rather than a stringified message should return a
// *guestvmerrors.GuestError built with guestvmerrors.NewGuestError: this
// callback unwraps it and throws the cloned raw value via ThrowException
// instead of a generic Error object, which is possible here (unlike the
// guest->host direction in ProgramModule.CallMethod) because the Go side
// already holds the exact value before it ever crosses into V8.
func (p *Program) CreateMaybeAsyncFunctionDeref(f bridge.HostFunc) (*v8go.FunctionTemplate, error) {
	if p.disposed.Load() {
		return nil, guestvmerrors.IsolateDisposed()
	}

	v8iso := p.iso.V8()
	tmpl := v8go.NewFunctionTemplate(v8iso, func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		ctx := info.Context()

		args := make([]any, 0, len(info.Args()))
		for _, a := range info.Args() {
			v, err := bridge.CloneOut(ctx, a)
			if err != nil {
				return p.throwHostError(ctx, err)
			}
			args = append(args, v)
		}

		env := bridge.WrapHostFunc(f, args)

		if env.IsPromise {
			return p.settleAsyncEnvelope(ctx, env)
		}

		val, err := env.Get(context.Background())
		if err != nil {
			return p.throwHostError(ctx, err)
		}
		jv, err := bridge.CloneIn(ctx, val)
		if err != nil {
			return p.throwHostError(ctx, err)
		}
		return jv
	})
	return tmpl, nil
}

// InstallHostFunction registers f under name on main's global, the usual
// way a host wires a createMaybeAsyncFunctionDeref result into guest-
// reachable scope.
func (p *Program) InstallHostFunction(name string, f bridge.HostFunc) error {
	tmpl, err := p.CreateMaybeAsyncFunctionDeref(f)
	if err != nil {
		return err
	}
	return p.iso.Enter(func() error {
		fn := tmpl.GetFunction(p.iso.Main())
		return p.iso.Main().Global().Set(name, fn)
	})
}

// settleAsyncEnvelope builds an internal, never-rejecting settlement
// promise in the safe context, hands it to asyncUnwrapStub (which chains
// through the safe context's own untouched Promise.prototype.then to turn
// it into a proper resolve-or-reject outcome), and returns the stub's
// result: the promise the guest actually awaits. A background goroutine
// resolves the settlement promise once env.Get unblocks, re-entering the
// isolate (serialized through iso.Enter, same as every other guest-
// context access).
func (p *Program) settleAsyncEnvelope(ctx *v8go.Context, env bridge.Envelope) *v8go.Value {
	safe := p.iso.Safe()

	resolver, err := v8go.NewPromiseResolver(safe)
	if err != nil {
		return p.throwHostError(ctx, err)
	}

	stub, err := p.asyncUnwrapStub()
	if err != nil {
		return p.throwHostError(ctx, err)
	}
	outer, err := stub.Call(v8go.Undefined(p.iso.V8()), resolver.GetPromise().Value)
	if err != nil {
		return p.throwHostError(ctx, err)
	}

	go func() {
		val, getErr := env.Get(context.Background())
		_ = p.iso.Enter(func() error {
			if p.iso.Disposed() {
				return nil
			}
			return resolver.Resolve(p.settlementBox(safe, val, getErr))
		})
	}()

	return outer
}

// settlementBox builds the {rejected, value} object asyncUnwrapStub
// expects, cloning val or the error's payload into the safe context.
func (p *Program) settlementBox(safe *v8go.Context, val any, getErr error) *v8go.Object {
	tmpl := v8go.NewObjectTemplate(p.iso.V8())
	box, _ := tmpl.NewInstance(safe)

	if getErr != nil {
		rejectedVal, _ := v8go.NewValue(p.iso.V8(), true)
		_ = box.Set("rejected", rejectedVal)
		_ = box.Set("value", p.cloneOrString(safe, getErr))
		return box
	}
	resolvedVal, _ := v8go.NewValue(p.iso.V8(), false)
	_ = box.Set("rejected", resolvedVal)
	jv, cerr := bridge.CloneIn(safe, val)
	if cerr != nil {
		jv = p.cloneOrString(safe, cerr)
	}
	_ = box.Set("value", jv)
	return box
}

// throwHostError unwraps a *guestvmerrors.GuestError's raw Value (if
// present) and throws the cloned value directly, preserving its exact
// type; any other error is thrown as a plain string message.
func (p *Program) throwHostError(ctx *v8go.Context, err error) *v8go.Value {
	return p.iso.V8().ThrowException(p.cloneOrString(ctx, err))
}

func (p *Program) cloneOrString(ctx *v8go.Context, err error) *v8go.Value {
	var ge *guestvmerrors.GuestError
	if stderrors.As(err, &ge) {
		if jv, cerr := bridge.CloneIn(ctx, ge.Value); cerr == nil {
			return jv
		}
	}
	v, _ := v8go.NewValue(p.iso.V8(), err.Error())
	return v
}
