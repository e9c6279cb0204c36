package bridge

import (
	"testing"
	"time"

	"github.com/varhub/guestvm/engine"
)

func newTestBridge(t *testing.T) (*engine.Isolate, *TimerBridge) {
	t.Helper()
	iso, err := engine.New(engine.Options{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	tb := NewTimerBridge(iso, iso.Main())
	if err := tb.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return iso, tb
}

func marked(t *testing.T, iso *engine.Isolate) bool {
	t.Helper()
	var fired bool
	err := iso.Enter(func() error {
		v, err := iso.Main().RunScript(`globalThis.__fired === true`, "check.js")
		if err != nil {
			return err
		}
		fired = v.Boolean()
		return nil
	})
	if err != nil {
		t.Fatalf("RunScript(check): %v", err)
	}
	return fired
}

func TestTimerBridgeSetTimeoutFires(t *testing.T) {
	iso, tb := newTestBridge(t)
	defer iso.Dispose()
	defer tb.Dispose()

	if err := iso.Enter(func() error {
		_, err := iso.Main().RunScript(`setTimeout(function(){ globalThis.__fired = true; }, 1)`, "test.js")
		return err
	}); err != nil {
		t.Fatalf("RunScript: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if marked(t, iso) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("setTimeout callback never fired")
}

func TestTimerBridgeClearTimeoutPreventsFire(t *testing.T) {
	iso, tb := newTestBridge(t)
	defer iso.Dispose()
	defer tb.Dispose()

	if err := iso.Enter(func() error {
		_, err := iso.Main().RunScript(`
			var id = setTimeout(function(){ globalThis.__fired = true; }, 20);
			clearTimeout(id);
		`, "test.js")
		return err
	}); err != nil {
		t.Fatalf("RunScript: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if marked(t, iso) {
		t.Fatal("cleared timeout fired anyway")
	}
}

func TestTimerBridgeDisposeCancelsOutstanding(t *testing.T) {
	iso, tb := newTestBridge(t)
	defer iso.Dispose()

	if err := iso.Enter(func() error {
		_, err := iso.Main().RunScript(`setTimeout(function(){ globalThis.__fired = true; }, 30)`, "test.js")
		return err
	}); err != nil {
		t.Fatalf("RunScript: %v", err)
	}

	if err := tb.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if marked(t, iso) {
		t.Fatal("timer fired after bridge disposal")
	}
}
