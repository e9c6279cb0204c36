package modgraph

import (
	"net/url"
	"strings"

	guestvmerrors "github.com/varhub/guestvm/errors"
)

// BuiltinChecker reports whether a module name currently holds the
// privileged "builtin" status that lets it import another module's
// private ("#") submodules. Program's setBuiltinModuleName mutates the set
// this checks against.
type BuiltinChecker interface {
	IsBuiltin(canonicalName string) bool
}

// ResolveSpecifier implements the spec's referrer -> specifier resolution
// rule:
//   - a specifier beginning with "#" attaches as a private submodule of the
//     referrer: the result is referrerName+specifier;
//   - a specifier that contains "#" anywhere else is a cross-module
//     private reference, permitted only when the referrer is a builtin;
//   - otherwise it is a plain URL resolve of specifier against referrer.
func ResolveSpecifier(referrerName, specifier string, builtins BuiltinChecker) (string, error) {
	if strings.HasPrefix(specifier, "#") {
		return referrerName + specifier, nil
	}

	if strings.Contains(specifier, "#") {
		if builtins != nil && builtins.IsBuiltin(referrerName) {
			return resolveURL(referrerName, specifier)
		}
		return "", guestvmerrors.PrivateModule(referrerName, specifier)
	}

	return resolveURL(referrerName, specifier)
}

func resolveURL(referrerName, specifier string) (string, error) {
	base, err := url.Parse(referrerName)
	if err != nil {
		// referrerName need not be a well-formed URL (it may just be a
		// plain path handed back by a SourceProvider); fall back to
		// treating it as an opaque base for relative joins.
		return joinPaths(referrerName, specifier), nil
	}
	ref, err := url.Parse(specifier)
	if err != nil {
		return joinPaths(referrerName, specifier), nil
	}
	return base.ResolveReference(ref).String(), nil
}

func joinPaths(base, specifier string) string {
	if strings.HasPrefix(specifier, "/") {
		return specifier
	}
	if !strings.HasPrefix(specifier, ".") {
		return specifier
	}
	dir := base
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		dir = base[:idx]
	} else {
		dir = ""
	}
	parts := strings.Split(dir+"/"+specifier, "/")
	var out []string
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
