// Package guestvm embeds untrusted guest scripts in an isolated V8
// execution environment and exposes a controlled module graph, a
// quota-bounded runtime, and a bidirectional bridge between host services
// and guest code.
//
// The package itself holds only the cross-cutting interfaces a host must
// implement to use the engine (SourceProvider) and a descriptor grammar
// helper for the host's own loader; the actual
// isolate lifecycle, module resolution, and value bridge live in the
// engine, modgraph, bridge, and program subpackages and are assembled by
// program.New.
package guestvm
