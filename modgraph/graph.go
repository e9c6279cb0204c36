package modgraph

import (
	"context"
	"sync"

	"github.com/varhub/guestvm"
	"github.com/varhub/guestvm/errors"
)

// Compiler performs the engine-side steps of turning a Module's source
// text into a usable namespace. Implemented by package program using
// engine.Isolate and v8go.
type Compiler interface {
	// Compile parses m.SourceText (already JSON-wrapped if needed) and
	// populates m.Compiled and m.DepSpecifiers.
	Compile(m *Module) error
	// Instantiate resolves every dependency specifier through resolve
	// (which must itself call Graph.resolve for each) and links the
	// module's imports.
	Instantiate(m *Module, resolve func(specifier string) (*Module, error)) error
	// Evaluate runs the module body to completion.
	Evaluate(m *Module) error
}

type entry struct {
	mu       sync.Mutex
	ready    chan struct{}
	settled  bool
	module   *Module
	err      error
}

func newPendingEntry() *entry {
	return &entry{ready: make(chan struct{})}
}

func (e *entry) settle(m *Module, err error) {
	e.mu.Lock()
	if e.settled {
		e.mu.Unlock()
		return
	}
	e.module, e.err, e.settled = m, err, true
	e.mu.Unlock()
	close(e.ready)
}

func (e *entry) wait(ctx context.Context) (*Module, error) {
	select {
	case <-e.ready:
		return e.module, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Graph is the Program-owned module cache and resolver.
type Graph struct {
	provider guestvm.SourceProvider
	compiler Compiler
	builtins BuiltinChecker

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Graph. builtins is consulted by specifier
// resolution for cross-module "#" references; it is typically the owning
// Program.
func New(provider guestvm.SourceProvider, compiler Compiler, builtins BuiltinChecker) *Graph {
	return &Graph{
		provider: provider,
		compiler: compiler,
		builtins: builtins,
		entries:  make(map[string]*entry),
	}
}

// GetModule resolves descriptor lazily, compiling/instantiating/evaluating
// it if this is the first request, or waiting on (and returning) the
// in-flight or already-settled result otherwise.
func (g *Graph) GetModule(ctx context.Context, descriptor string) (*Module, error) {
	return g.resolve(ctx, descriptor)
}

// CreateModule inserts sourceText directly under name, bypassing the
// SourceProvider, and fails if name is already a key in the graph.
func (g *Graph) CreateModule(ctx context.Context, name, sourceText, typeHint string) (*Module, error) {
	g.mu.Lock()
	if _, exists := g.entries[name]; exists {
		g.mu.Unlock()
		return nil, errors.ModuleAlreadyExists(name)
	}
	e := newPendingEntry()
	g.entries[name] = e
	g.mu.Unlock()

	m := &Module{CanonicalName: name, SourceText: wrapIfJSON(sourceText, typeHint), Type: typeOf(typeHint)}
	g.compileInstantiateEvaluate(ctx, e, m)
	return e.wait(ctx)
}

// resolve implements the four-step algorithm from the spec: hit on an
// existing key (pending or resolved), else ask the SourceProvider, alias
// onto an existing canonical-name entry, or begin a fresh compile.
func (g *Graph) resolve(ctx context.Context, descriptor string) (*Module, error) {
	g.mu.Lock()
	if e, ok := g.entries[descriptor]; ok {
		g.mu.Unlock()
		return e.wait(ctx)
	}
	g.mu.Unlock()

	resolved, ok := g.provider.Resolve(ctx, descriptor)
	if !ok || resolved == nil {
		return nil, errors.ModuleNotFound(descriptor)
	}

	g.mu.Lock()
	if e, ok := g.entries[resolved.Name]; ok {
		g.entries[descriptor] = e
		g.mu.Unlock()
		return e.wait(ctx)
	}

	e := newPendingEntry()
	g.entries[descriptor] = e
	g.entries[resolved.Name] = e
	g.mu.Unlock()

	src, err := resolved.GetSource(ctx)
	if err != nil {
		e.settle(nil, errors.New(errors.PhaseModule, errors.KindCompileError).
			Module(resolved.Name).Detail("getSource failed").Cause(err).Build())
		return e.wait(ctx)
	}

	m := &Module{
		CanonicalName: resolved.Name,
		SourceText:    wrapIfJSON(src.Text, src.Type),
		Type:          typeOf(src.Type),
	}
	g.compileInstantiateEvaluate(ctx, e, m)
	return e.wait(ctx)
}

func (g *Graph) compileInstantiateEvaluate(ctx context.Context, e *entry, m *Module) {
	if err := g.compiler.Compile(m); err != nil {
		m.state = stateFailed
		e.settle(nil, errors.CompileError(m.CanonicalName, err))
		return
	}

	resolveDep := func(specifier string) (*Module, error) {
		target, err := ResolveSpecifier(m.CanonicalName, specifier, g.builtins)
		if err != nil {
			return nil, err
		}
		return g.resolve(ctx, target)
	}

	if err := g.compiler.Instantiate(m, resolveDep); err != nil {
		m.state = stateFailed
		e.settle(nil, errors.InstantiateError(m.CanonicalName, err))
		return
	}
	m.state = stateInstantiated

	if err := g.compiler.Evaluate(m); err != nil {
		m.state = stateFailed
		e.settle(nil, errors.EvaluateError(m.CanonicalName, err))
		return
	}
	m.state = stateEvaluated
	e.settle(m, nil)
}

func typeOf(hint string) ModuleType {
	if guestvm.IsJSONType(hint) {
		return TypeJSON
	}
	return TypeJS
}

func wrapIfJSON(text, hint string) string {
	if guestvm.IsJSONType(hint) {
		return "export default " + text
	}
	return text
}
