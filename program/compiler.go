package program

import (
	"regexp"
	"strings"

	"rogchap.com/v8go"

	"github.com/varhub/guestvm/engine"
	guestvmerrors "github.com/varhub/guestvm/errors"
	"github.com/varhub/guestvm/modgraph"
)

// compiler implements modgraph.Compiler against a real V8 isolate.
//
// rogchap.com/v8go exposes script compilation but not V8's native ES
// module graph API, so each module body is rewritten into a CommonJS-style
// factory — the same kind of hand-rolled export-syntax lowering a Go
// embedder reaching for v8go (rather than a full ECMAScript toolchain)
// would write. The factory is compiled once as an isolate-level
// UnboundScript and run in the main context with a require function closed
// over the module's already-resolved dependencies.
type compiler struct {
	iso *engine.Isolate
}

// requireEntry is stashed on modgraph.Module.Extra: the per-module map
// from dependency specifier to the dependency's own exports object, built
// during Instantiate and consumed during Evaluate.
type requireEntry struct {
	deps      map[string]*v8go.Object
	reexports []string // specifiers with "export * from ..."
}

var (
	reExportDefault = regexp.MustCompile(`(?m)^\s*export\s+default\s+`)
	reExportDecl    = regexp.MustCompile(`(?m)(^|;)\s*export\s+(async\s+function|function|class|const|let|var)\s+([A-Za-z_$][\w$]*)`)
	reExportBraces  = regexp.MustCompile(`(?m)^\s*export\s*\{([^}]*)\}(?:\s*from\s*["']([^"']+)["'])?\s*;?`)
	reExportStar    = regexp.MustCompile(`(?m)^\s*export\s+\*\s+from\s+["']([^"']+)["']\s*;?`)
)

// namedReexport is one member of an `export { a, b as c } from "spec"`
// clause: unlike a bare `export { x }`, the named members reference
// spec's exports, not a local binding, so they can't be lowered into the
// plain `exports.name = name` pattern exportNames uses.
type namedReexport struct {
	spec  string
	orig  string
	local string
}

// Compile rewrites m.SourceText into a CommonJS factory, records its
// static dependency specifiers, and compiles it as an UnboundScript that
// Evaluate later runs in the main context.
func (c *compiler) Compile(m *modgraph.Module) error {
	body, exportNames, reexportSpecs, namedReexports, importSpecs := lowerExports(m.SourceText)

	factory := "(function(module, exports, require, importMeta) {\n" +
		body + "\n"
	for _, name := range exportNames {
		factory += "exports." + name + " = " + name + ";\n"
	}
	for _, spec := range reexportSpecs {
		factory += "Object.assign(exports, require(" + quoteJS(spec) + "));\n"
	}
	for _, nr := range namedReexports {
		factory += "exports." + nr.local + " = require(" + quoteJS(nr.spec) + ")." + nr.orig + ";\n"
	}
	factory += "})"

	script, err := c.iso.V8().CompileUnboundScript(factory, m.CanonicalName, v8go.CompileOptions{})
	if err != nil {
		return err
	}

	namedSpecs := make([]string, 0, len(namedReexports))
	seen := make(map[string]bool, len(reexportSpecs))
	for _, spec := range reexportSpecs {
		seen[spec] = true
	}
	for _, nr := range namedReexports {
		if !seen[nr.spec] {
			seen[nr.spec] = true
			namedSpecs = append(namedSpecs, nr.spec)
		}
	}

	deps := make([]string, 0, len(importSpecs)+len(reexportSpecs)+len(namedSpecs))
	deps = append(deps, importSpecs...)
	deps = append(deps, reexportSpecs...)
	deps = append(deps, namedSpecs...)

	m.Compiled = script
	m.DepSpecifiers = deps
	m.Extra = &requireEntry{deps: make(map[string]*v8go.Object), reexports: reexportSpecs}
	return nil
}

// Instantiate resolves every dependency specifier (recursively compiling
// and evaluating them through resolve) and records each dependency's
// exports object for Evaluate's require closure.
func (c *compiler) Instantiate(m *modgraph.Module, resolve func(string) (*modgraph.Module, error)) error {
	entry, _ := m.Extra.(*requireEntry)
	if entry == nil {
		entry = &requireEntry{deps: make(map[string]*v8go.Object)}
		m.Extra = entry
	}

	for _, spec := range m.DepSpecifiers {
		dep, err := resolve(spec)
		if err != nil {
			return err
		}
		ns, _ := dep.Namespace.(*v8go.Object)
		entry.deps[spec] = ns
	}
	return nil
}

// Evaluate runs the compiled factory in the main context, supplying a
// require() closed over Instantiate's resolved dependency map and an
// import.meta seeded with {url: canonicalName}.
func (c *compiler) Evaluate(m *modgraph.Module) error {
	return c.iso.Enter(func() error { return c.evaluate(m) })
}

func (c *compiler) evaluate(m *modgraph.Module) error {
	script, ok := m.Compiled.(*v8go.UnboundScript)
	if !ok {
		return guestvmerrors.New(guestvmerrors.PhaseEvaluate, guestvmerrors.KindEvaluateError).
			Module(m.CanonicalName).Detail("module was not compiled").Build()
	}
	entry, _ := m.Extra.(*requireEntry)

	ctx := c.iso.Main()
	factoryVal, err := script.Run(ctx)
	if err != nil {
		return err
	}
	factoryFn, err := factoryVal.AsFunction()
	if err != nil {
		return err
	}

	moduleObj := v8go.NewObjectTemplate(c.iso.V8())
	moduleInst, err := moduleObj.NewInstance(ctx)
	if err != nil {
		return err
	}
	exportsTmpl := v8go.NewObjectTemplate(c.iso.V8())
	exportsInst, err := exportsTmpl.NewInstance(ctx)
	if err != nil {
		return err
	}
	if err := moduleInst.Set("exports", exportsInst); err != nil {
		return err
	}

	requireTmpl := v8go.NewFunctionTemplate(c.iso.V8(), func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := info.Args()
		if len(args) == 0 {
			return v8go.Undefined(c.iso.V8())
		}
		spec := args[0].String()
		if entry != nil {
			if ns, ok := entry.deps[spec]; ok && ns != nil {
				return ns.Value
			}
		}
		return v8go.Undefined(c.iso.V8())
	})
	requireFn := requireTmpl.GetFunction(ctx)

	metaTmpl := v8go.NewObjectTemplate(c.iso.V8())
	metaInst, err := metaTmpl.NewInstance(ctx)
	if err != nil {
		return err
	}
	urlVal, err := v8go.NewValue(c.iso.V8(), m.CanonicalName)
	if err != nil {
		return err
	}
	if err := metaInst.Set("url", urlVal); err != nil {
		return err
	}

	if _, err := factoryFn.Call(v8go.Undefined(c.iso.V8()), moduleInst, exportsInst, requireFn, metaInst); err != nil {
		return err
	}

	finalExports, err := moduleInst.Get("exports")
	if err != nil {
		return err
	}
	finalObj, err := finalExports.AsObject()
	if err != nil {
		return err
	}
	m.Namespace = finalObj
	return nil
}

// lowerExports rewrites a subset of ES module export syntax into plain
// statements plus the bookkeeping Compile needs: the declared export
// names, "export * from" specifiers, "export { a, b as c } from" named
// re-exports, and static import specifiers (a plain scan for
// `import ... from "spec"` / `import "spec"`). Import statements are not
// rewritten: they stay in the returned body, so a module whose source
// contains one fails to compile as a factory function.
func lowerExports(src string) (body string, exportNames, reexportSpecs []string, namedReexports []namedReexport, importSpecs []string) {
	body = src

	for _, m := range reExportBraces.FindAllStringSubmatch(body, -1) {
		spec := m[2]
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if spec != "" {
				orig, local := part, part
				if idx := strings.Index(part, " as "); idx >= 0 {
					orig = strings.TrimSpace(part[:idx])
					local = strings.TrimSpace(part[idx+len(" as "):])
				}
				namedReexports = append(namedReexports, namedReexport{spec: spec, orig: orig, local: local})
				continue
			}
			name := part
			if idx := strings.Index(part, " as "); idx >= 0 {
				name = strings.TrimSpace(part[:idx])
			}
			exportNames = append(exportNames, name)
		}
	}
	body = reExportBraces.ReplaceAllString(body, "")

	for _, m := range reExportStar.FindAllStringSubmatch(body, -1) {
		reexportSpecs = append(reexportSpecs, m[1])
	}
	body = reExportStar.ReplaceAllString(body, "")

	for _, m := range reExportDecl.FindAllStringSubmatch(body, -1) {
		exportNames = append(exportNames, m[3])
	}
	body = reExportDecl.ReplaceAllStringFunc(body, func(s string) string {
		return reExportDecl.ReplaceAllString(s, "$1$2 $3")
	})

	body = reExportDefault.ReplaceAllString(body, "module.exports.default = ")

	importSpecs = scanImportSpecifiers(body)
	return body, exportNames, reexportSpecs, namedReexports, importSpecs
}

var reImport = regexp.MustCompile(`(?m)^\s*import\s+(?:[^'"]+\sfrom\s+)?["']([^"']+)["']\s*;?`)

func scanImportSpecifiers(src string) []string {
	var specs []string
	for _, m := range reImport.FindAllStringSubmatch(src, -1) {
		specs = append(specs, m[1])
	}
	return specs
}

func quoteJS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
