package program

import (
	"context"
	"encoding/json"
	"time"

	"rogchap.com/v8go"

	"github.com/varhub/guestvm/bridge"
	guestvmerrors "github.com/varhub/guestvm/errors"
	"github.com/varhub/guestvm/modgraph"
)

// ProgramModule is a thin, host-side handle over a compiled and evaluated
// module's exports namespace.
type ProgramModule struct {
	program *Program
	module  *modgraph.Module
}

// GetDependencySpecifiers returns the static specifier list recorded at
// compile time.
func (pm *ProgramModule) GetDependencySpecifiers() []string {
	return append([]string(nil), pm.module.DepSpecifiers...)
}

// GetType synchronously reflects the engine-reported type tag of an
// export, or "" if the export is absent. The lookup goes through v8go's
// Object.Get, so an export defined as an accessor property has its getter
// run to produce the value whose type is reported.
func (pm *ProgramModule) GetType(prop string) (string, error) {
	if pm.program.disposed.Load() {
		return "", guestvmerrors.IsolateDisposed()
	}
	ns, ok := pm.module.Namespace.(*v8go.Object)
	if !ok {
		return "", guestvmerrors.New(guestvmerrors.PhaseEvaluate, guestvmerrors.KindEvaluateError).
			Module(pm.module.CanonicalName).Detail("module has no namespace").Build()
	}

	var typeTag string
	var getErr error
	err := pm.program.iso.Enter(func() error {
		v, err := ns.Get(prop)
		if err != nil {
			getErr = err
			return nil
		}
		if v.IsUndefined() {
			typeTag = ""
			return nil
		}
		typeTag = jsTypeOf(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return typeTag, getErr
}

func jsTypeOf(v *v8go.Value) string {
	switch {
	case v.IsFunction():
		return "function"
	case v.IsString():
		return "string"
	case v.IsNumber():
		return "number"
	case v.IsBoolean():
		return "boolean"
	case v.IsSymbol():
		return "symbol"
	case v.IsBigInt():
		return "bigint"
	case v.IsUndefined():
		return "undefined"
	default:
		return "object"
	}
}

// GetKeysAsync returns the namespace's own property names, obtained
// through the safe-context enumeration stub so the result cannot be
// skewed by a guest redefining Object.prototype or Object.keys in main.
func (pm *ProgramModule) GetKeysAsync(ctx context.Context) ([]string, error) {
	if pm.program.disposed.Load() {
		return nil, guestvmerrors.IsolateDisposed()
	}
	ns, ok := pm.module.Namespace.(*v8go.Object)
	if !ok {
		return nil, guestvmerrors.New(guestvmerrors.PhaseEvaluate, guestvmerrors.KindEvaluateError).
			Module(pm.module.CanonicalName).Detail("module has no namespace").Build()
	}

	var keys []string
	err := pm.program.iso.Enter(func() error {
		stub, err := pm.program.ownKeysStub()
		if err != nil {
			return err
		}
		resultVal, err := stub.Call(v8go.Undefined(pm.program.iso.V8()), ns)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(resultVal.String()), &keys)
	})
	return keys, err
}

// GetProp returns a structured-clone copy of an exported value.
func (pm *ProgramModule) GetProp(prop string) (any, error) {
	if pm.program.disposed.Load() {
		return nil, guestvmerrors.IsolateDisposed()
	}
	ns, ok := pm.module.Namespace.(*v8go.Object)
	if !ok {
		return nil, guestvmerrors.New(guestvmerrors.PhaseEvaluate, guestvmerrors.KindEvaluateError).
			Module(pm.module.CanonicalName).Detail("module has no namespace").Build()
	}

	var out any
	err := pm.program.iso.Enter(func() error {
		v, err := ns.Get(prop)
		if err != nil {
			return err
		}
		out, err = bridge.CloneOut(pm.program.iso.Main(), v)
		return err
	})
	return out, err
}

// CallMethod resolves prop as a callable export, applies it with copied
// args and thisValue, and returns a copy of the result, awaiting it if the
// guest function returned a promise or threw asynchronously. A rejection
// surfaces as a *GuestError carrying the cloned rejection value. A
// synchronous throw surfaces as a *GuestError whose Value is the engine's
// error message string, not the thrown value itself.
func (pm *ProgramModule) CallMethod(ctx context.Context, prop string, thisValue any, args ...any) (any, error) {
	if pm.program.disposed.Load() {
		return nil, guestvmerrors.IsolateDisposed()
	}
	ns, ok := pm.module.Namespace.(*v8go.Object)
	if !ok {
		return nil, guestvmerrors.New(guestvmerrors.PhaseEvaluate, guestvmerrors.KindEvaluateError).
			Module(pm.module.CanonicalName).Detail("module has no namespace").Build()
	}

	var resultVal *v8go.Value
	var isPromise bool
	err := pm.program.iso.Enter(func() error {
		fnVal, err := ns.Get(prop)
		if err != nil {
			return err
		}
		fn, err := fnVal.AsFunction()
		if err != nil {
			return guestvmerrors.New(guestvmerrors.PhaseEvaluate, guestvmerrors.KindEvaluateError).
				Module(pm.module.CanonicalName).Detail("export %q is not callable", prop).Build()
		}

		jsArgs := make([]v8go.Valuer, 0, len(args))
		for _, a := range args {
			jv, err := bridge.CloneIn(pm.program.iso.Main(), a)
			if err != nil {
				return err
			}
			jsArgs = append(jsArgs, jv)
		}

		var recv v8go.Valuer
		if thisValue != nil {
			rv, err := bridge.CloneIn(pm.program.iso.Main(), thisValue)
			if err != nil {
				return err
			}
			recv = rv
		} else {
			recv = v8go.Undefined(pm.program.iso.V8())
		}

		rv, err := fn.Call(recv, jsArgs...)
		if err != nil {
			return guestvmerrors.NewGuestError(err.Error())
		}
		resultVal = rv
		isPromise = rv.IsPromise()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if isPromise {
		return pm.awaitPromise(ctx, resultVal)
	}
	return bridge.CloneOut(pm.program.iso.Main(), resultVal)
}

// pollBackoffMin and pollBackoffMax bound the delay between successive
// checks of a pending promise's state: short enough that a promise
// settling after one microtask checkpoint (the common case, e.g. an
// already-resolved timer) is observed almost immediately, capped so a
// long-pending guest promise doesn't spin a goroutine hot while waiting.
const (
	pollBackoffMin = time.Millisecond
	pollBackoffMax = 20 * time.Millisecond
)

func (pm *ProgramModule) awaitPromise(ctx context.Context, v *v8go.Value) (any, error) {
	var out any
	var rejected bool
	var rejErr error

	backoff := pollBackoffMin
	for {
		var state v8go.PromiseState
		err := pm.program.iso.Enter(func() error {
			prom, err := v.AsPromise()
			if err != nil {
				return err
			}
			pm.program.iso.Main().PerformMicrotaskCheckpoint()
			state = prom.State()
			if state == v8go.Pending {
				return nil
			}
			result := prom.Result()
			if state == v8go.Rejected {
				rejected = true
				val, cerr := bridge.CloneOut(pm.program.iso.Main(), result)
				if cerr != nil {
					rejErr = cerr
					return nil
				}
				rejErr = guestvmerrors.NewGuestError(val)
				return nil
			}
			val, cerr := bridge.CloneOut(pm.program.iso.Main(), result)
			out, rejErr = val, cerr
			return nil
		})
		if err != nil {
			return nil, err
		}
		if state != v8go.Pending {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if backoff < pollBackoffMax {
			backoff *= 2
			if backoff > pollBackoffMax {
				backoff = pollBackoffMax
			}
		}
	}

	if rejected {
		return nil, rejErr
	}
	return out, rejErr
}

// CallMethodIgnored is a fire-and-forget call: any error, including one
// from a rejecting promise, is swallowed. Used for host-originated event
// dispatch into guest where back-pressure from the guest is undesirable.
func (pm *ProgramModule) CallMethodIgnored(ctx context.Context, prop string, thisValue any, args ...any) {
	_, _ = pm.CallMethod(ctx, prop, thisValue, args...)
}
