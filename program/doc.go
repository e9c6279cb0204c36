// Package program assembles engine, modgraph, and bridge into the Program
// the host actually constructs: one isolate, a main and a safe context, a
// module graph wired to a Compiler that runs module bodies in the main
// context, a
// TimerBridge installed on the main context, a ValueBridge the host wires
// per host function via CreateMaybeAsyncFunctionDeref/InstallHostFunction,
// a QuotaWatchdog running in the background, and the ordered dispose-hook
// list that tears all of it down exactly once.
package program
