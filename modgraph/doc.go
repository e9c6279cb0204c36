// Package modgraph implements the lazy, deduplicated, aliased module
// graph: resolution of a descriptor to a canonical name, specifier
// resolution rules (private "#" submodules, builtin-only cross-module "#"
// references, plain URL resolution), and the pending-or-resolved handle
// caching that makes a second request for the same name or its accepted
// alias return the original module.
//
// The actual V8 compile/instantiate/evaluate steps are injected through
// the Compiler interface so this package stays independent of the engine
// subpackage; package program supplies the concrete implementation.
package modgraph
