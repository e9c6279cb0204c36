package bridge

import (
	"context"
	"errors"
	"testing"

	guestvmerrors "github.com/varhub/guestvm/errors"
)

func TestWrapHostFuncSynchronousValue(t *testing.T) {
	env := WrapHostFunc(func(args []any) (any, error, <-chan AsyncResult) {
		return args[0], nil, nil
	}, []any{"hello"})

	if env.IsError || env.IsPromise {
		t.Fatalf("expected plain value envelope, got IsError=%v IsPromise=%v", env.IsError, env.IsPromise)
	}
	v, err := env.Get(context.Background())
	if err != nil || v != "hello" {
		t.Fatalf("Get() = (%v, %v), want (hello, nil)", v, err)
	}
}

func TestWrapHostFuncSynchronousThrow(t *testing.T) {
	boom := errors.New("boom")
	env := WrapHostFunc(func(args []any) (any, error, <-chan AsyncResult) {
		return nil, boom, nil
	}, nil)

	if !env.IsError || env.IsPromise {
		t.Fatalf("expected error envelope, got IsError=%v IsPromise=%v", env.IsError, env.IsPromise)
	}
	_, err := env.Get(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Get() err = %v, want %v", err, boom)
	}
}

// TestWrapHostFuncAsyncThrowPreservesValue exercises scenario 2 from the
// testable-properties list: a promise that rejects with a raw value (not
// an Error wrapping it) must surface that exact value, not a stringified
// wrapper.
func TestWrapHostFuncAsyncThrowPreservesValue(t *testing.T) {
	pending := make(chan AsyncResult, 1)
	pending <- AsyncResult{Value: float64(41), Rejected: true}

	env := WrapHostFunc(func(args []any) (any, error, <-chan AsyncResult) {
		return nil, nil, pending
	}, nil)

	if !env.IsPromise || env.IsError {
		t.Fatalf("expected promise envelope, got IsError=%v IsPromise=%v", env.IsError, env.IsPromise)
	}

	_, err := env.Get(context.Background())
	var ge *guestvmerrors.GuestError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GuestError, got %v", err)
	}
	if ge.Value != float64(41) {
		t.Fatalf("rejected value = %v, want 41", ge.Value)
	}
}

func TestWrapHostFuncRecoversPanic(t *testing.T) {
	env := WrapHostFunc(func(args []any) (any, error, <-chan AsyncResult) {
		panic("guest-visible panic")
	}, nil)

	if !env.IsError {
		t.Fatal("expected panic to be converted into an error envelope")
	}
	if _, err := env.Get(context.Background()); err == nil {
		t.Fatal("expected non-nil error from recovered panic")
	}
}
