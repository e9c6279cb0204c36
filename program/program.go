package program

import (
	"context"
	"sync"
	"sync/atomic"

	"rogchap.com/v8go"

	"github.com/varhub/guestvm"
	"github.com/varhub/guestvm/bridge"
	"github.com/varhub/guestvm/engine"
	guestvmerrors "github.com/varhub/guestvm/errors"
	"github.com/varhub/guestvm/modgraph"
)

// Program owns exactly one Isolate, the module graph, the timer bridge,
// and the quota watchdog, and composes them into the API the spec
// surfaces to the host: createModule, getModule, setBuiltinModuleName,
// createInspectorSession, startRpc, dispose.
type Program struct {
	iso      *engine.Isolate
	graph    *modgraph.Graph
	compiler *compiler
	timers   *bridge.TimerBridge
	watchdog *engine.QuotaWatchdog

	builtinMu sync.RWMutex
	builtins  map[string]bool

	modulesMu sync.Mutex
	modules   map[string]*ProgramModule

	hooks    disposeHooks
	disposed atomic.Bool

	listenersMu sync.Mutex
	listeners   []func()

	inspectorEnabled bool
	stubs            safeStubs
}

// New creates a Program: an isolate with the configured memory ceiling, a
// main and a safe context, the TimerBridge installed on main, and the
// QuotaWatchdog running in the background.
func New(provider guestvm.SourceProvider, opts Options) (*Program, error) {
	opts = opts.withDefaults()

	iso, err := engine.New(engine.Options{MemoryLimitMB: opts.MemoryLimitMB})
	if err != nil {
		return nil, err
	}

	p := &Program{
		iso:              iso,
		builtins:         make(map[string]bool),
		modules:          make(map[string]*ProgramModule),
		inspectorEnabled: opts.Inspector,
	}

	p.compiler = &compiler{iso: iso}
	p.graph = modgraph.New(provider, p.compiler, p)

	p.timers = bridge.NewTimerBridge(iso, iso.Main())
	if err := p.timers.Install(); err != nil {
		iso.Dispose()
		return nil, err
	}
	p.hooks.add(p.timers.Dispose)

	p.watchdog = engine.NewQuotaWatchdog(iso, opts.CheckoutInterval, opts.MaxWallDelta, func() {
		Logger().Sugar().Warnw("quota exceeded, disposing program")
		go func() { _ = p.Dispose() }()
	})
	p.watchdog.Start()
	p.hooks.add(func() error { return p.watchdog.Stop() })

	p.hooks.add(func() error {
		iso.Dispose()
		return nil
	})

	return p, nil
}

// IsBuiltin implements modgraph.BuiltinChecker.
func (p *Program) IsBuiltin(canonicalName string) bool {
	p.builtinMu.RLock()
	defer p.builtinMu.RUnlock()
	return p.builtins[canonicalName]
}

// SetBuiltinModuleName toggles membership in the privileged set that may
// import other modules' private ("#") submodules.
func (p *Program) SetBuiltinModuleName(name string, on bool) {
	p.builtinMu.Lock()
	defer p.builtinMu.Unlock()
	if on {
		p.builtins[name] = true
	} else {
		delete(p.builtins, name)
	}
}

// GetModule lazily resolves name through the module graph and wraps the
// result in a cached ProgramModule handle: a second GetModule for the
// same canonical name returns the identical handle.
func (p *Program) GetModule(ctx context.Context, name string) (*ProgramModule, error) {
	if p.disposed.Load() {
		return nil, guestvmerrors.IsolateDisposed()
	}
	m, err := p.graph.GetModule(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.wrap(m), nil
}

// CreateModule inserts sourceText under name and fails if name is already
// registered; otherwise behaves like GetModule.
func (p *Program) CreateModule(ctx context.Context, name, sourceText, typeHint string) (*ProgramModule, error) {
	if p.disposed.Load() {
		return nil, guestvmerrors.IsolateDisposed()
	}
	m, err := p.graph.CreateModule(ctx, name, sourceText, typeHint)
	if err != nil {
		return nil, err
	}
	return p.wrap(m), nil
}

func (p *Program) wrap(m *modgraph.Module) *ProgramModule {
	p.modulesMu.Lock()
	defer p.modulesMu.Unlock()
	if pm, ok := p.modules[m.CanonicalName]; ok {
		return pm
	}
	pm := &ProgramModule{program: p, module: m}
	p.modules[m.CanonicalName] = pm
	return pm
}

// CreateInspectorSession creates a debug session bound to this Program.
// Fails with InspectorDisabled if the Program was not created with
// Options.Inspector set.
func (p *Program) CreateInspectorSession() (*InspectorSession, error) {
	if p.disposed.Load() {
		return nil, guestvmerrors.IsolateDisposed()
	}
	if !p.inspectorEnabled {
		return nil, guestvmerrors.InspectorDisabled()
	}
	return newInspectorSession(p), nil
}

// StartRPC evaluates helperSource in the main context and calls the
// resulting function with moduleName's exports namespace, wiring the
// user module as the varhub:rpc/varhub:room form. helperSource is
// supplied by the host (the Controller/RoomHelper layer this package
// treats as an external collaborator); the exports namespace is the only
// argument Program passes to it, and no import.meta is supplied.
func (p *Program) StartRPC(ctx context.Context, moduleName, helperSource string) error {
	pm, err := p.GetModule(ctx, moduleName)
	if err != nil {
		return err
	}

	return p.iso.Enter(func() error {
		script, err := p.iso.V8().CompileUnboundScript(helperSource, "varhub:rpc", v8go.CompileOptions{})
		if err != nil {
			return guestvmerrors.New(guestvmerrors.PhaseRPC, guestvmerrors.KindCompileError).Cause(err).Build()
		}
		fnVal, err := script.Run(p.iso.Main())
		if err != nil {
			return err
		}
		fn, err := fnVal.AsFunction()
		if err != nil {
			return err
		}
		ns, _ := pm.module.Namespace.(*v8go.Object)
		_, err = fn.Call(v8go.Undefined(p.iso.V8()), ns)
		return err
	})
}

// IsDisposed reports whether Dispose has already run.
func (p *Program) IsDisposed() bool {
	return p.disposed.Load()
}

// OnDispose registers a listener invoked exactly once when Dispose
// completes. The spec's on("dispose").
func (p *Program) OnDispose(fn func()) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Dispose marks the Program disposed, runs every dispose hook in
// registration order (swallowing errors), and emits the dispose event.
// Idempotent. IsDisposed already reports true while the hooks run. The
// isolate is disposed by one of those hooks, registered in New after the
// timer-bridge and watchdog hooks, so hooks added later (such as those of
// inspector sessions) run after the isolate is gone.
func (p *Program) Dispose() error {
	if !p.disposed.CompareAndSwap(false, true) {
		return nil
	}
	p.hooks.runAll()

	p.listenersMu.Lock()
	listeners := p.listeners
	p.listeners = nil
	p.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// addDisposeHook exposes disposeHooks.add to inspector.go without making
// the field itself exported.
func (p *Program) addDisposeHook(fn func() error) int {
	return p.hooks.add(fn)
}

func (p *Program) removeDisposeHook(id int) {
	p.hooks.remove(id)
}

// Isolate exposes the underlying engine isolate for packages/tests that
// need direct access (e.g. to run a script in the main context).
func (p *Program) Isolate() *engine.Isolate { return p.iso }
