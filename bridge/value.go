package bridge

import (
	"context"
	"encoding/json"

	"rogchap.com/v8go"

	guestvmerrors "github.com/varhub/guestvm/errors"
)

// Envelope is the Go-side rendering of the spec's
// {isPromise, isError, get} record: the result of invoking a host function
// that may have thrown synchronously, returned a plain value, or returned
// a promise. Get blocks (if IsPromise) until the promise settles.
type Envelope struct {
	IsPromise bool
	IsError   bool
	Get       func(ctx context.Context) (any, error)
}

// HostFunc is a host-language callback reachable from guest code. It may
// return a pending result (a channel delivering (value, error)) to signal
// "this became a promise"; ordinary synchronous functions just return
// (value, error, nil).
type HostFunc func(args []any) (value any, err error, pending <-chan AsyncResult)

// AsyncResult is delivered on a HostFunc's pending channel once a deferred
// host call settles.
type AsyncResult struct {
	Value    any
	Rejected bool
}

// WrapHostFunc builds the Envelope the spec's createMaybeAsyncFunctionDeref
// describes: invoke f; a synchronous panic or returned err becomes
// IsError; a non-nil pending channel becomes IsPromise with Get awaiting
// it; otherwise the plain value is returned synchronously.
func WrapHostFunc(f HostFunc, args []any) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			env = Envelope{IsError: true, Get: func(context.Context) (any, error) {
				return nil, guestvmerrors.NewGuestError(r)
			}}
		}
	}()

	value, err, pending := f(args)
	if pending != nil {
		return Envelope{
			IsPromise: true,
			Get: func(ctx context.Context) (any, error) {
				select {
				case res := <-pending:
					if res.Rejected {
						return nil, guestvmerrors.NewGuestError(res.Value)
					}
					return res.Value, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		}
	}
	if err != nil {
		return Envelope{IsError: true, Get: func(context.Context) (any, error) { return nil, err }}
	}
	return Envelope{Get: func(context.Context) (any, error) { return value, nil }}
}

// CloneIn converts a Go value into a v8go Value inside ctx by round-
// tripping it through JSON, the practical analogue of V8's internal
// structured clone available through v8go's public API. A nil value
// becomes null. Values json.Marshal cannot encode (cyclic graphs,
// channels, functions, NaN and infinite floats) are rejected at the
// json.Marshal step with a bridge error.
func CloneIn(ctx *v8go.Context, goValue any) (*v8go.Value, error) {
	if goValue == nil {
		return v8go.Null(ctx.Isolate()), nil
	}
	data, err := json.Marshal(goValue)
	if err != nil {
		return nil, guestvmerrors.New(guestvmerrors.PhaseBridge, guestvmerrors.KindInvalidInput).
			Detail("value is not structured-clone representable").Cause(err).Build()
	}
	v, err := v8go.JSONParse(ctx, string(data))
	if err != nil {
		return nil, guestvmerrors.New(guestvmerrors.PhaseBridge, guestvmerrors.KindInvalidInput).
			Detail("failed to materialize cloned value in guest context").Cause(err).Build()
	}
	return v, nil
}

// CloneOut converts a v8go Value back into a plain Go value (map[string]any,
// []any, string, float64, bool, nil) via the same JSON round trip. It
// follows JSON.stringify: null and undefined become nil, a Map or Set
// becomes an empty map, NaN and Infinity become nil, and a cyclic object
// fails with a bridge error.
func CloneOut(ctx *v8go.Context, jsValue *v8go.Value) (any, error) {
	if jsValue == nil || jsValue.IsNullOrUndefined() {
		return nil, nil
	}
	text, err := v8go.JSONStringify(ctx, jsValue)
	if err != nil {
		return nil, guestvmerrors.New(guestvmerrors.PhaseBridge, guestvmerrors.KindInvalidInput).
			Detail("failed to stringify guest value for clone-out").Cause(err).Build()
	}
	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, guestvmerrors.New(guestvmerrors.PhaseBridge, guestvmerrors.KindInvalidInput).
			Detail("failed to decode cloned value").Cause(err).Build()
	}
	return out, nil
}
