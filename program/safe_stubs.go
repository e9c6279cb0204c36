package program

import (
	"sync"

	"rogchap.com/v8go"

	guestvmerrors "github.com/varhub/guestvm/errors"
)

// safeStubs holds host-authored helper functions compiled once in the
// isolate's safe context, where a guest script's redefinitions of
// Object/Array/JSON on main cannot reach them. ownKeysStub enumerates a
// namespace's own keys via the safe context's untouched Object binding;
// asyncUnwrapFn turns the Go side's internal {rejected, value} settlement
// promise into the rejecting-or-resolving promise a guest-called host
// function hands back, chained through the safe context's own
// Promise.prototype.then so a guest redefinition of main's Promise.then
// cannot intercept the unwrap.
type safeStubs struct {
	mu            sync.Mutex
	ownKeysFn     *v8go.Function
	asyncUnwrapFn *v8go.Function
}

func (p *Program) ownKeysStub() (*v8go.Function, error) {
	p.stubs.mu.Lock()
	defer p.stubs.mu.Unlock()

	if p.stubs.ownKeysFn != nil {
		return p.stubs.ownKeysFn, nil
	}

	script, err := p.iso.V8().CompileUnboundScript(
		"(function(obj) { return JSON.stringify(Object.keys(Object(obj))); })",
		"guestvm:own-keys-stub",
		v8go.CompileOptions{},
	)
	if err != nil {
		return nil, guestvmerrors.New(guestvmerrors.PhaseEvaluate, guestvmerrors.KindCompileError).
			Detail("failed to compile own-keys stub").Cause(err).Build()
	}

	fnVal, err := script.Run(p.iso.Safe())
	if err != nil {
		return nil, err
	}
	fn, err := fnVal.AsFunction()
	if err != nil {
		return nil, err
	}

	p.stubs.ownKeysFn = fn
	return fn, nil
}

// asyncUnwrapStub returns the cached safe-context function that converts a
// never-rejecting {rejected, value} settlement promise into the outcome a
// guest awaiting a host function actually observes: a rejecting promise
// if rejected is true, a resolving one otherwise.
func (p *Program) asyncUnwrapStub() (*v8go.Function, error) {
	p.stubs.mu.Lock()
	defer p.stubs.mu.Unlock()

	if p.stubs.asyncUnwrapFn != nil {
		return p.stubs.asyncUnwrapFn, nil
	}

	script, err := p.iso.V8().CompileUnboundScript(
		`(function(settlement) {
			return settlement.then(function(r) {
				if (r.rejected) { throw r.value; }
				return r.value;
			});
		})`,
		"guestvm:async-unwrap-stub",
		v8go.CompileOptions{},
	)
	if err != nil {
		return nil, guestvmerrors.New(guestvmerrors.PhaseEvaluate, guestvmerrors.KindCompileError).
			Detail("failed to compile async-unwrap stub").Cause(err).Build()
	}

	fnVal, err := script.Run(p.iso.Safe())
	if err != nil {
		return nil, err
	}
	fn, err := fnVal.AsFunction()
	if err != nil {
		return nil, err
	}

	p.stubs.asyncUnwrapFn = fn
	return fn, nil
}
