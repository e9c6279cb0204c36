package engine

import (
	"sync"
	"time"
)

// QuotaWatchdog periodically samples an Isolate's accumulated wall time and
// terminates it once the budget is exceeded. Grounded on the "monitoring
// goroutine only calls TerminateExecution, never touches V8 state" pattern
// used for per-call timeouts in the pack's v8go examples, generalized from a
// single deadline to a recurring budget check so a long-lived isolate can be
// watched across many guest calls rather than just one.
type QuotaWatchdog struct {
	iso      *Isolate
	interval time.Duration
	maxDelta time.Duration

	mu       sync.Mutex
	stopCh   chan struct{}
	stopped  bool
	lastSeen time.Duration

	onExceeded func()
}

// NewQuotaWatchdog creates a watchdog for iso. interval is how often the
// isolate's accumulated wall time is sampled (checkoutMs in the spec);
// maxDelta is how much guest execution time may accrue between two
// consecutive samples before the isolate is considered runaway
// (maxDelta in the spec, default 2s of continuous guest execution).
// onExceeded, if non-nil, is invoked once the moment the budget is first
// exceeded, before TerminateExecution is called, so the owner can record
// the reason.
func NewQuotaWatchdog(iso *Isolate, interval, maxDelta time.Duration, onExceeded func()) *QuotaWatchdog {
	return &QuotaWatchdog{
		iso:        iso,
		interval:   interval,
		maxDelta:   maxDelta,
		onExceeded: onExceeded,
	}
}

// Start begins sampling in a background goroutine.
func (w *QuotaWatchdog) Start() {
	w.mu.Lock()
	if w.stopCh != nil {
		w.mu.Unlock()
		return
	}
	w.stopCh = make(chan struct{})
	stop := w.stopCh
	w.mu.Unlock()

	go w.run(stop)
}

func (w *QuotaWatchdog) run(stop chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if w.iso.Disposed() {
				return
			}
			now := w.iso.WallTime()
			delta := now - w.lastSeen
			w.lastSeen = now
			if delta >= w.maxDelta {
				if w.onExceeded != nil {
					w.onExceeded()
				}
				w.iso.Terminate()
				return
			}
		}
	}
}

// Stop halts sampling. Safe to call multiple times and safe to call
// concurrently with a sample that is about to fire.
func (w *QuotaWatchdog) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.stopCh == nil {
		w.stopped = true
		return nil
	}
	close(w.stopCh)
	w.stopped = true
	return nil
}
