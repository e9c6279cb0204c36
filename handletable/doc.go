// Package handletable provides a generic, observer-capable slice-backed
// handle allocator. It is the same create/get/remove/subscribe shape the
// rest of this codebase uses for every "opaque id to long-lived Go value"
// problem, trimmed of the Component Model's borrow/rep ABI machinery: callers
// here only ever need create, get, and remove behind a monotonically
// increasing generation counter.
package handletable
