// Package bridge implements the cross-boundary value bridge and the timer
// bridge: the envelope shape that preserves synchronous-throw vs.
// promise-rejection semantics across the host/guest trust boundary, and
// the host-owned setTimeout/setInterval/setImmediate family exposed on the
// main context's global.
package bridge
