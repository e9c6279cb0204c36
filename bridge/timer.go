package bridge

import (
	"time"

	"rogchap.com/v8go"

	"github.com/varhub/guestvm/engine"
	"github.com/varhub/guestvm/handletable"
)

type timerKind int

const (
	kindTimeout timerKind = iota
	kindInterval
	kindImmediate
)

type timerEntry struct {
	kind     timerKind
	callback *v8go.Function
	cancel   func()
	cleared  bool
}

func (e *timerEntry) Drop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// TimerBridge installs setTimeout/clearTimeout/setInterval/clearInterval/
// setImmediate/clearImmediate on a context's global and dispatches fires
// back into the owning isolate. Each kind gets its own handletable.Table,
// which is both a faithful rendering of the spec's "unique per kind" id
// contract and a convenient way to make clearTimeout ignore an id that
// only ever existed in the interval table.
type TimerBridge struct {
	iso    *engine.Isolate
	ctx    *v8go.Context
	tables [3]*handletable.Table

	disposed bool
}

// NewTimerBridge creates a bridge that will install its globals on ctx and
// dispatch fires through iso.Enter.
func NewTimerBridge(iso *engine.Isolate, ctx *v8go.Context) *TimerBridge {
	return &TimerBridge{
		iso: iso,
		ctx: ctx,
		tables: [3]*handletable.Table{
			handletable.New(),
			handletable.New(),
			handletable.New(),
		},
	}
}

// Install adds the six global functions to the bridge's context.
func (b *TimerBridge) Install() error {
	global := b.ctx.Global()
	v8iso := b.iso.V8()

	set := func(name string, kind timerKind) error {
		tmpl := v8go.NewFunctionTemplate(v8iso, b.makeSetCallback(kind))
		fn := tmpl.GetFunction(b.ctx)
		return global.Set(name, fn)
	}
	clear := func(name string, kind timerKind) error {
		tmpl := v8go.NewFunctionTemplate(v8iso, b.makeClearCallback(kind))
		fn := tmpl.GetFunction(b.ctx)
		return global.Set(name, fn)
	}

	for _, step := range []struct {
		name string
		kind timerKind
		fn   func(string, timerKind) error
	}{
		{"setTimeout", kindTimeout, set},
		{"clearTimeout", kindTimeout, clear},
		{"setInterval", kindInterval, set},
		{"clearInterval", kindInterval, clear},
		{"setImmediate", kindImmediate, set},
		{"clearImmediate", kindImmediate, clear},
	} {
		if err := step.fn(step.name, step.kind); err != nil {
			return err
		}
	}
	return nil
}

func (b *TimerBridge) makeSetCallback(kind timerKind) v8go.FunctionCallback {
	return func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) == 0 || !args[0].IsFunction() {
			return throwTypeError(info, "callback must be a function")
		}
		fn, err := args[0].AsFunction()
		if err != nil {
			return throwTypeError(info, "callback must be a function")
		}

		var delay time.Duration
		if kind != kindImmediate && len(args) > 1 {
			delay = time.Duration(args[1].Number()) * time.Millisecond
		}

		handle := b.schedule(kind, fn, delay)
		v, _ := v8go.NewValue(b.iso.V8(), uint32(handle))
		return v
	}
}

func (b *TimerBridge) makeClearCallback(kind timerKind) v8go.FunctionCallback {
	return func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) == 0 {
			return v8go.Undefined(b.iso.V8())
		}
		h := handletable.Handle(uint32(args[0].Integer()))
		b.clear(kind, h)
		return v8go.Undefined(b.iso.V8())
	}
}

func (b *TimerBridge) schedule(kind timerKind, fn *v8go.Function, delay time.Duration) handletable.Handle {
	table := b.tables[kind]

	var handle handletable.Handle
	entry := &timerEntry{kind: kind, callback: fn}

	fire := func() {
		_ = b.iso.Enter(func() error {
			if b.disposed {
				return nil
			}
			if v, ok := table.Get(handle); !ok || v.(*timerEntry).cleared {
				return nil
			}
			if kind != kindInterval {
				table.Remove(handle)
			}
			_, err := entry.callback.Call(v8go.Undefined(b.iso.V8()))
			return err
		})
	}

	switch kind {
	case kindTimeout:
		t := time.AfterFunc(delay, fire)
		entry.cancel = t.Stop
	case kindImmediate:
		t := time.AfterFunc(0, fire)
		entry.cancel = t.Stop
	case kindInterval:
		if delay <= 0 {
			delay = time.Millisecond
		}
		ticker := time.NewTicker(delay)
		entry.cancel = ticker.Stop
		go func() {
			for range ticker.C {
				fire()
			}
		}()
	}

	handle = table.Insert(entry)
	return handle
}

func (b *TimerBridge) clear(kind timerKind, h handletable.Handle) {
	v, ok := b.tables[kind].Remove(h)
	if !ok {
		return
	}
	entry := v.(*timerEntry)
	entry.cleared = true
}

// Dispose cancels every outstanding timer. After Dispose, no stored
// callback will fire even if it was already in flight: fire() checks the
// disposed flag and table membership under iso.Enter before invoking the
// guest callback.
func (b *TimerBridge) Dispose() error {
	b.disposed = true
	for _, t := range b.tables {
		t.Close()
	}
	return nil
}

func throwTypeError(info *v8go.FunctionCallbackInfo, msg string) *v8go.Value {
	iso := info.Context().Isolate()
	errVal, _ := v8go.NewValue(iso, msg)
	return iso.ThrowException(errVal)
}
