package program

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	guestvm "github.com/varhub/guestvm"
	guestvmerrors "github.com/varhub/guestvm/errors"
)

// mapProvider resolves descriptors straight out of an in-memory map, keyed
// by the descriptor string itself (Name == descriptor).
type mapProvider map[string]string

func (p mapProvider) Resolve(ctx context.Context, descriptor string) (*guestvm.Resolved, bool) {
	text, ok := p[descriptor]
	if !ok {
		return nil, false
	}
	return &guestvm.Resolved{
		Name: descriptor,
		GetSource: func(context.Context) (guestvm.Source, error) {
			return guestvm.Source{Text: text}, nil
		},
	}, true
}

func newTestProgram(t *testing.T, provider mapProvider, opts Options) *Program {
	t.Helper()
	p, err := New(provider, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Dispose() })
	return p
}

func TestProgramSimpleCall(t *testing.T) {
	provider := mapProvider{
		"main.js": `export function add(a, b) { return a + b; }`,
	}
	p := newTestProgram(t, provider, Options{})

	mod, err := p.GetModule(context.Background(), "main.js")
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}

	result, err := mod.CallMethod(context.Background(), "add", nil, float64(2), float64(3))
	if err != nil {
		t.Fatalf("CallMethod: %v", err)
	}
	if result != float64(5) {
		t.Fatalf("add(2,3) = %v, want 5", result)
	}
}

func TestProgramAsyncThrowPreservesValue(t *testing.T) {
	provider := mapProvider{
		"main.js": `export async function fail() { throw 41; }`,
	}
	p := newTestProgram(t, provider, Options{})

	mod, err := p.GetModule(context.Background(), "main.js")
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}

	_, err = mod.CallMethod(context.Background(), "fail", nil)
	if err == nil {
		t.Fatal("expected an error from a rejecting promise")
	}
	var ge *guestvmerrors.GuestError
	if !stderrors.As(err, &ge) {
		t.Fatalf("expected *errors.GuestError, got %T: %v", err, err)
	}
	if ge.Value != float64(41) {
		t.Fatalf("rejected value = %v (%T), want 41", ge.Value, ge.Value)
	}
}

func TestProgramGetTypeAndKeys(t *testing.T) {
	provider := mapProvider{
		"main.js": `export const count = 3; export function run() {}`,
	}
	p := newTestProgram(t, provider, Options{})

	mod, err := p.GetModule(context.Background(), "main.js")
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}

	typ, err := mod.GetType("count")
	if err != nil {
		t.Fatalf("GetType(count): %v", err)
	}
	if typ != "number" {
		t.Fatalf("GetType(count) = %q, want number", typ)
	}

	typ, err = mod.GetType("run")
	if err != nil {
		t.Fatalf("GetType(run): %v", err)
	}
	if typ != "function" {
		t.Fatalf("GetType(run) = %q, want function", typ)
	}

	keys, err := mod.GetKeysAsync(context.Background())
	if err != nil {
		t.Fatalf("GetKeysAsync: %v", err)
	}
	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if !seen["count"] || !seen["run"] {
		t.Fatalf("GetKeysAsync = %v, want count and run present", keys)
	}
}

func TestProgramPrivateModuleResolution(t *testing.T) {
	provider := mapProvider{
		"holy.js":       `export * from "#inner";`,
		"holy.js#inner": `export const secret = "ok";`,
		"evil.js":       `export * from "holy.js#inner";`,
	}
	p := newTestProgram(t, provider, Options{})

	mod, err := p.GetModule(context.Background(), "holy.js")
	if err != nil {
		t.Fatalf("GetModule(holy.js): %v", err)
	}
	val, err := mod.GetProp("secret")
	if err != nil {
		t.Fatalf("GetProp(secret): %v", err)
	}
	if val != "ok" {
		t.Fatalf("secret = %v, want ok", val)
	}

	if _, err := p.GetModule(context.Background(), "evil.js"); err == nil {
		t.Fatal("expected evil.js's cross-module private reference to fail")
	}
}

func TestProgramCPUQuotaDisposesIsolate(t *testing.T) {
	provider := mapProvider{
		"main.js": `export function spin(x) { while (x-- > 0) {} }`,
	}
	disposed := make(chan struct{})
	p := newTestProgram(t, provider, Options{
		CheckoutInterval: 10 * time.Millisecond,
		MaxWallDelta:     5 * time.Millisecond,
	})
	p.OnDispose(func() { close(disposed) })

	mod, err := p.GetModule(context.Background(), "main.js")
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}

	go func() {
		// A number too large to finish looping before the watchdog fires;
		// Infinity itself is not structured-clone representable through the
		// JSON-based bridge, so a very large finite count stands in for it.
		_, _ = mod.CallMethod(context.Background(), "spin", nil, 1e18)
	}()

	select {
	case <-disposed:
	case <-time.After(5 * time.Second):
		t.Fatal("expected quota watchdog to dispose the program")
	}
}

func TestProgramInspectorLifecycle(t *testing.T) {
	provider := mapProvider{"main.js": `export const ok = true;`}
	p := newTestProgram(t, provider, Options{Inspector: true})

	sessions := make([]*InspectorSession, 3)
	for i := range sessions {
		s, err := p.CreateInspectorSession()
		if err != nil {
			t.Fatalf("CreateInspectorSession: %v", err)
		}
		sessions[i] = s
	}

	if err := sessions[0].Dispose(); err != nil {
		t.Fatalf("Dispose session 0: %v", err)
	}
	if !sessions[0].Disposed() {
		t.Fatal("session 0 should be disposed")
	}
	if sessions[1].Disposed() || sessions[2].Disposed() {
		t.Fatal("sessions 1 and 2 should still be open")
	}

	if err := p.Dispose(); err != nil {
		t.Fatalf("Dispose program: %v", err)
	}
	for i, s := range sessions {
		if !s.Disposed() {
			t.Fatalf("session %d should be disposed after program dispose", i)
		}
	}
}

func TestProgramNamedReexportFromSpecifier(t *testing.T) {
	provider := mapProvider{
		"util.js": `export const secret = "ok"; export function helper() { return 1; }`,
		"main.js": `export { secret as renamed, helper } from "util.js";`,
	}
	p := newTestProgram(t, provider, Options{})

	mod, err := p.GetModule(context.Background(), "main.js")
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}

	val, err := mod.GetProp("renamed")
	if err != nil {
		t.Fatalf("GetProp(renamed): %v", err)
	}
	if val != "ok" {
		t.Fatalf("renamed = %v, want ok", val)
	}

	typ, err := mod.GetType("helper")
	if err != nil {
		t.Fatalf("GetType(helper): %v", err)
	}
	if typ != "function" {
		t.Fatalf("GetType(helper) = %q, want function", typ)
	}
}

func TestProgramInspectorDisabledByDefault(t *testing.T) {
	provider := mapProvider{"main.js": `export const ok = true;`}
	p := newTestProgram(t, provider, Options{})

	if _, err := p.CreateInspectorSession(); err == nil {
		t.Fatal("expected InspectorDisabled when Options.Inspector is false")
	}
}
