// Package errors provides structured error types for guestvm.
//
// Errors are categorized by Phase (the subsystem that raised them) and Kind
// (the error category). Use the Builder for structured construction:
//
//	err := errors.New(errors.PhaseModule, errors.KindModuleNotFound).
//		Module(descriptor).
//		Detail("could not resolve specifier").
//		Build()
//
// or one of the convenience constructors for the common cases named in the
// error handling table (errors.ModuleNotFound, errors.CompileError, ...).
//
// Values thrown by guest JavaScript code are never wrapped with Builder:
// they travel as *GuestError, whose Value field holds whatever the caller
// put there. A rejected guest promise awaited by ProgramModule.CallMethod
// carries the cloned rejection value; a synchronous guest throw there
// carries only the engine's error message string.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
