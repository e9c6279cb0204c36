package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseModule,
				Kind:   KindModuleNotFound,
				Module: "./util.js",
				Path:   []string{"imports", "0"},
				Detail: "could not resolve specifier",
			},
			contains: []string{"[module]", "module_not_found", "module=./util.js", "imports.0", "could not resolve specifier"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseIsolate,
				Kind:  KindIsolateDisposed,
			},
			contains: []string{"[isolate]", "isolate_disposed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEvaluate,
				Kind:   KindEvaluateError,
				Detail: "module threw",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[evaluate]", "evaluate_error", "module threw", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseModule,
		Kind:  KindCompileError,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseModule,
		Kind:  KindModuleNotFound,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseModule, Kind: KindModuleNotFound}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseEvaluate, Kind: KindModuleNotFound}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseModule, Kind: KindCompileError}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseModule, Kind: KindModuleNotFound}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseModule, KindModuleNotFound).
		Path("imports", "0").
		Module("./util.js").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "module", "nothing").
		Build()

	if err.Phase != PhaseModule {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseModule)
	}
	if err.Kind != KindModuleNotFound {
		t.Errorf("Kind = %v, want %v", err.Kind, KindModuleNotFound)
	}
	if len(err.Path) != 2 || err.Path[0] != "imports" || err.Path[1] != "0" {
		t.Errorf("Path = %v, want [imports 0]", err.Path)
	}
	if err.Module != "./util.js" {
		t.Errorf("Module = %v, want './util.js'", err.Module)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected module, got nothing" {
		t.Errorf("Detail = %v, want 'expected module, got nothing'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("ModuleNotFound", func(t *testing.T) {
		err := ModuleNotFound("./missing.js")
		if err.Kind != KindModuleNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindModuleNotFound)
		}
		if err.Module != "./missing.js" {
			t.Errorf("Module = %v, want './missing.js'", err.Module)
		}
	})

	t.Run("ModuleAlreadyExists", func(t *testing.T) {
		err := ModuleAlreadyExists("room")
		if err.Kind != KindModuleAlreadyExists {
			t.Errorf("Kind = %v, want %v", err.Kind, KindModuleAlreadyExists)
		}
	})

	t.Run("PrivateModule", func(t *testing.T) {
		err := PrivateModule("room", "room#internal")
		if err.Kind != KindPrivateModule {
			t.Errorf("Kind = %v, want %v", err.Kind, KindPrivateModule)
		}
	})

	t.Run("UnknownReferrer", func(t *testing.T) {
		err := UnknownReferrer("ghost")
		if err.Kind != KindUnknownReferrer {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnknownReferrer)
		}
	})

	t.Run("CompileError", func(t *testing.T) {
		err := CompileError("room", errors.New("unexpected token"))
		if err.Kind != KindCompileError {
			t.Errorf("Kind = %v, want %v", err.Kind, KindCompileError)
		}
		if err.Cause == nil {
			t.Error("Cause should be set")
		}
	})

	t.Run("QuotaExceeded", func(t *testing.T) {
		err := QuotaExceeded("wall time budget exceeded")
		if err.Kind != KindQuotaExceeded {
			t.Errorf("Kind = %v, want %v", err.Kind, KindQuotaExceeded)
		}
	})

	t.Run("InspectorDisabled", func(t *testing.T) {
		err := InspectorDisabled()
		if err.Kind != KindInspectorDisabled {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInspectorDisabled)
		}
	})
}

func TestGuestError(t *testing.T) {
	cause := errors.New("wrapped")
	err := NewGuestError(map[string]any{"message": "boom"})
	err.Cause = cause

	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() = %q, want it to contain the thrown value", err.Error())
	}
	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, &GuestError{}) {
		t.Error("errors.Is should match GuestError by type")
	}

	var ge *GuestError
	if !errors.As(err, &ge) {
		t.Fatal("errors.As should unwrap to *GuestError")
	}
	m, ok := ge.Value.(map[string]any)
	if !ok || m["message"] != "boom" {
		t.Errorf("Value = %v, want the original thrown map", ge.Value)
	}
}
