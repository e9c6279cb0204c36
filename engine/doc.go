// Package engine owns the V8 isolate lifecycle: isolate creation with a
// heap ceiling, the main/safe context split, wall-time accounting for
// guest calls, and the QuotaWatchdog that terminates an isolate which
// overruns its CPU budget.
package engine
