package guestvm

import (
	"context"
	"strings"
)

// Source is what a SourceProvider's GetSource returns for a resolved
// descriptor: the source text and a loose type hint. Only a Type
// containing "json" (case-insensitive) triggers JSON-module wrapping;
// any other value, including the empty string, is treated as JavaScript.
type Source struct {
	Type string
	Text string
}

// Resolved is returned by SourceProvider.Resolve when a descriptor maps to
// a real module. Name is the canonical name used to key the module graph
// and to resolve relative imports; it may equal the descriptor. GetSource
// is called at most once per resolution and may block (it is invoked off
// the isolate's single-threaded entry point).
type Resolved struct {
	Name      string
	GetSource func(ctx context.Context) (Source, error)
}

// SourceProvider maps a module descriptor to its canonical name and a lazy
// source-text getter. A nil *Resolved (ok == false) means the descriptor
// could not be resolved and the graph reports ModuleNotFound.
type SourceProvider interface {
	Resolve(ctx context.Context, descriptor string) (*Resolved, bool)
}

// IsJSONType reports whether a SourceProvider's loose type hint should
// trigger JSON-module wrapping.
func IsJSONType(hint string) bool {
	return strings.Contains(strings.ToLower(hint), "json")
}

// Descriptor is the parsed form of the external grammar
// [<protocol>:]<path>[.<extension>][?<query>][#<hash>], for the external
// Controller's use. The module graph does not parse descriptors with it:
// it keys entries by the raw descriptor and canonical name strings, and
// its private-submodule rule looks only for "#" in a specifier.
type Descriptor struct {
	Protocol  string
	Path      string
	Extension string
	Query     string
	Hash      string
}

// ParseDescriptor parses the descriptor grammar. It does not validate that
// Path is non-empty; callers that require a non-empty path must check
// themselves.
func ParseDescriptor(raw string) Descriptor {
	d := Descriptor{}

	rest := raw
	if idx := strings.Index(rest, "#"); idx >= 0 {
		d.Hash = rest[idx+1:]
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, "?"); idx >= 0 {
		d.Query = rest[idx+1:]
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, ":"); idx >= 0 && isProtocol(rest[:idx]) {
		d.Protocol = rest[:idx]
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, "."); idx > strings.LastIndex(rest, "/") {
		d.Extension = rest[idx+1:]
	}
	d.Path = rest

	return d
}

// isProtocol guards against mistaking a Windows-style drive letter or a URL
// port for a protocol prefix: a protocol is a short run of letters only.
func isProtocol(s string) bool {
	if s == "" || len(s) > 16 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
