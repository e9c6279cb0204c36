package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which subsystem raised the error.
type Phase string

const (
	PhaseIsolate   Phase = "isolate"   // isolate creation, disposal
	PhaseModule    Phase = "module"    // module graph resolution/compilation
	PhaseEvaluate  Phase = "evaluate"  // module/script evaluation
	PhaseBridge    Phase = "bridge"    // value bridge marshaling
	PhaseTimer     Phase = "timer"     // timer bridge
	PhaseInspector Phase = "inspector" // inspector session
	PhaseRPC       Phase = "rpc"       // startRpc wiring
)

// Kind categorizes the error.
type Kind string

const (
	KindModuleNotFound      Kind = "module_not_found"
	KindModuleAlreadyExists Kind = "module_already_exists"
	KindPrivateModule       Kind = "private_module"
	KindCompileError        Kind = "compile_error"
	KindInstantiateError    Kind = "instantiate_error"
	KindEvaluateError       Kind = "evaluate_error"
	KindGuestError          Kind = "guest_error"
	KindIsolateDisposed     Kind = "isolate_disposed"
	KindInspectorDisabled   Kind = "inspector_disabled"
	KindUnknownReferrer     Kind = "unknown_referrer"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindInvalidInput        Kind = "invalid_input"
)

// Error is the structured error type used throughout the engine.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Module string
	Detail string
	Path   []string
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" module=")
		b.WriteString(e.Module)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error's Phase and Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder for the given phase and kind.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
	return b
}

func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// GuestError wraps a value thrown by guest JavaScript code. Unlike Error it
// is never built through Builder: the raw thrown value must survive
// round-tripping through Unwrap/Is untouched, so a host catching a guest
// throw can recover the original value rather than a stringified detail.
type GuestError struct {
	Value any
	Cause error
}

func (e *GuestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v (%v)", PhaseEvaluate, KindGuestError, e.Value, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %v", PhaseEvaluate, KindGuestError, e.Value)
}

func (e *GuestError) Unwrap() error {
	return e.Cause
}

func (e *GuestError) Is(target error) bool {
	_, ok := target.(*GuestError)
	return ok
}

// NewGuestError wraps a raw guest-thrown value.
func NewGuestError(value any) *GuestError {
	return &GuestError{Value: value}
}

// Convenience constructors for the common cases named in the error table.

func ModuleNotFound(descriptor string) *Error {
	return New(PhaseModule, KindModuleNotFound).
		Module(descriptor).
		Detail("module %q could not be resolved", descriptor).
		Build()
}

func ModuleAlreadyExists(name string) *Error {
	return New(PhaseModule, KindModuleAlreadyExists).
		Module(name).
		Detail("module %q is already registered", name).
		Build()
}

func PrivateModule(referrer, specifier string) *Error {
	return New(PhaseModule, KindPrivateModule).
		Module(specifier).
		Detail("private submodule %q is not reachable from referrer %q", specifier, referrer).
		Build()
}

func UnknownReferrer(referrer string) *Error {
	return New(PhaseModule, KindUnknownReferrer).
		Module(referrer).
		Detail("referrer %q is not a known module", referrer).
		Build()
}

func CompileError(name string, cause error) *Error {
	return New(PhaseModule, KindCompileError).
		Module(name).
		Detail("failed to compile module").
		Cause(cause).
		Build()
}

func InstantiateError(name string, cause error) *Error {
	return New(PhaseEvaluate, KindInstantiateError).
		Module(name).
		Detail("failed to instantiate module").
		Cause(cause).
		Build()
}

func EvaluateError(name string, cause error) *Error {
	return New(PhaseEvaluate, KindEvaluateError).
		Module(name).
		Detail("module evaluation threw").
		Cause(cause).
		Build()
}

func IsolateDisposed() *Error {
	return New(PhaseIsolate, KindIsolateDisposed).
		Detail("isolate has already been disposed").
		Build()
}

func InspectorDisabled() *Error {
	return New(PhaseInspector, KindInspectorDisabled).
		Detail("program was created without inspector support").
		Build()
}

func QuotaExceeded(detail string) *Error {
	return New(PhaseIsolate, KindQuotaExceeded).
		Detail("%s", detail).
		Build()
}

func InvalidInput(phase Phase, detail string) *Error {
	return New(phase, KindInvalidInput).Detail("%s", detail).Build()
}
