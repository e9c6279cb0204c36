package program

import "time"

// Options configures a Program. Zero values are replaced by the spec's
// defaults in New.
type Options struct {
	// MemoryLimitMB caps the isolate's heap. Default 8 (the spec's
	// memoryLimitMb default).
	MemoryLimitMB uint64

	// Inspector enables createInspectorSession. Default false.
	Inspector bool

	// CheckoutInterval is the QuotaWatchdog's sampling period
	// (checkoutMs). Default 10s.
	CheckoutInterval time.Duration

	// MaxWallDelta is the QuotaWatchdog's per-checkout guest-execution
	// budget (maxDelta). Default 2s.
	MaxWallDelta time.Duration
}

func (o Options) withDefaults() Options {
	if o.MemoryLimitMB == 0 {
		o.MemoryLimitMB = 8
	}
	if o.CheckoutInterval == 0 {
		o.CheckoutInterval = 10 * time.Second
	}
	if o.MaxWallDelta == 0 {
		o.MaxWallDelta = 2 * time.Second
	}
	return o
}
