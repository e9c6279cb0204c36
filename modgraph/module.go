package modgraph

// ModuleType distinguishes how a module's source text was wrapped before
// compilation.
type ModuleType string

const (
	TypeJS   ModuleType = "js"
	TypeJSON ModuleType = "json"
)

type moduleState int

const (
	stateCompiling moduleState = iota
	stateInstantiated
	stateEvaluated
	stateFailed
)

// Module is a compiled, evaluated unit in the graph: a canonical name, its
// source text (after any JSON wrapping), its static dependency list, and
// the engine-side compiled unit and namespace object, opaque to this
// package and owned by whatever Compiler produced them.
type Module struct {
	CanonicalName string
	SourceText    string
	Type          ModuleType
	DepSpecifiers []string

	// Compiled and Namespace are engine-owned opaque handles (a
	// *v8go.UnboundScript and a *v8go.Object namespace in program's
	// Compiler implementation). modgraph never dereferences them.
	Compiled  any
	Namespace any

	// Extra is Compiler-private bookkeeping that needs to survive between
	// Compile, Instantiate, and Evaluate (program's Compiler stashes its
	// per-module require map here). modgraph never reads or writes it.
	Extra any

	state moduleState
}

// State-query helpers reporting how far the module got through the graph's
// compile, instantiate, and evaluate steps.
func (m *Module) Evaluated() bool  { return m.state == stateEvaluated }
func (m *Module) Failed() bool     { return m.state == stateFailed }
func (m *Module) Compiling() bool  { return m.state == stateCompiling }
func (m *Module) Instantiated() bool {
	return m.state == stateInstantiated || m.state == stateEvaluated
}
