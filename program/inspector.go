package program

import (
	"encoding/json"
	"sync"

	guestvmerrors "github.com/varhub/guestvm/errors"
)

type inspectorState int

const (
	inspectorCreated inspectorState = iota
	inspectorOpen
	inspectorDisposed
)

// InspectorSession is a reduced-fidelity stand-in for a devtools protocol
// session: it does not drive a real V8 inspector channel (v8go's public API
// exposes none), but preserves the lifecycle and message-interception
// contract the spec describes, so a host speaking CDP against it degrades
// gracefully instead of hanging on methods this engine cannot service.
//
// Program and InspectorSession dispose independently in either order: a
// session created from a Program registers a dispose hook on the Program
// so Program.Dispose also disposes every outstanding session, and removes
// that hook when it disposes itself first.
type InspectorSession struct {
	program *Program

	mu      sync.Mutex
	state   inspectorState
	hookID  int
	onEvent func(method string, params json.RawMessage)
}

func newInspectorSession(p *Program) *InspectorSession {
	s := &InspectorSession{program: p, state: inspectorOpen}
	s.hookID = p.addDisposeHook(func() error {
		s.disposeLocked()
		return nil
	})
	return s
}

// OnEvent stores a callback for protocol events (e.g.
// Runtime.consoleAPICalled). Only one callback is retained; a later call
// replaces the earlier one. This session emits no protocol events of its
// own, so the stored callback is never invoked.
func (s *InspectorSession) OnEvent(fn func(method string, params json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

type cdpMessage struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int    `json:"id"`
	Result any    `json:"result"`
	Error  *cdpError `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DispatchProtocolMessage interprets a single CDP request. Runtime.compileScript
// never reaches the guest isolate: it is answered with a fabricated success
// result, since this engine has no standalone parse-only entry point to
// back it with. Runtime.evaluate is accepted but has its replMode and
// awaitPromise parameters stripped before being handed to the caller for
// actual evaluation, since this engine's evaluation path has no REPL-mode
// analogue and always awaits promises itself.
func (s *InspectorSession) DispatchProtocolMessage(raw []byte) ([]byte, error) {
	s.mu.Lock()
	if s.state != inspectorOpen {
		s.mu.Unlock()
		return nil, guestvmerrors.New(guestvmerrors.PhaseInspector, guestvmerrors.KindInspectorDisabled).
			Detail("inspector session is not open").Build()
	}
	s.mu.Unlock()

	var msg cdpMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, guestvmerrors.New(guestvmerrors.PhaseInspector, guestvmerrors.KindInvalidInput).
			Detail("malformed protocol message").Cause(err).Build()
	}

	switch msg.Method {
	case "Runtime.compileScript":
		return json.Marshal(cdpResponse{ID: msg.ID, Result: map[string]any{}})
	case "Runtime.evaluate":
		params, err := stripReplParams(msg.Params)
		if err != nil {
			return nil, err
		}
		msg.Params = params
		return json.Marshal(cdpResponse{ID: msg.ID, Result: map[string]any{"stripped": true, "params": json.RawMessage(params)}})
	default:
		return json.Marshal(cdpResponse{
			ID: msg.ID,
			Error: &cdpError{Code: -32601, Message: "method not supported by this inspector session"},
		})
	}
}

func stripReplParams(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, guestvmerrors.New(guestvmerrors.PhaseInspector, guestvmerrors.KindInvalidInput).
			Detail("malformed Runtime.evaluate params").Cause(err).Build()
	}
	delete(params, "replMode")
	delete(params, "awaitPromise")
	return json.Marshal(params)
}

// Disposed reports whether Dispose has run, either directly or because the
// owning Program disposed first.
func (s *InspectorSession) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == inspectorDisposed
}

// Dispose ends the session. Idempotent, and safe to call whether or not
// the owning Program has already disposed.
func (s *InspectorSession) Dispose() error {
	s.mu.Lock()
	if s.state == inspectorDisposed {
		s.mu.Unlock()
		return nil
	}
	hookID := s.hookID
	s.mu.Unlock()

	s.program.removeDisposeHook(hookID)
	s.disposeLocked()
	return nil
}

func (s *InspectorSession) disposeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = inspectorDisposed
}
