// Command guestrun loads a guest JavaScript module from a directory of
// source files and calls one of its exports, the way a host embedding
// package program would for a single tenant.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/varhub/guestvm/program"
)

func main() {
	var (
		dir         = flag.String("dir", ".", "Directory containing guest module sources")
		entry       = flag.String("entry", "", "Entry module descriptor, relative to -dir")
		funcName    = flag.String("func", "", "Exported function to call (optional)")
		argsJSON    = flag.String("args", "[]", "JSON array of arguments to pass to -func")
		memoryMB    = flag.Uint64("memory-mb", 8, "Isolate memory limit in MiB")
		list        = flag.Bool("list", false, "List the entry module's own exported keys and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *entry == "" {
		fmt.Fprintln(os.Stderr, "Usage: guestrun -dir <path> -entry <module> [-func name] [-args '[...]']")
		fmt.Fprintln(os.Stderr, "       guestrun -dir <path> -entry <module> -list")
		fmt.Fprintln(os.Stderr, "       guestrun -dir <path> -entry <module> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i requires an interactive terminal on stdout")
			os.Exit(1)
		}
		if err := runInteractive(*dir, *entry, *memoryMB); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*dir, *entry, *funcName, *argsJSON, *memoryMB, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(dir, entry, funcName, argsJSON string, memoryMB uint64, listOnly bool) error {
	ctx := context.Background()

	provider := newDirProvider(dir)
	p, err := program.New(provider, program.Options{MemoryLimitMB: memoryMB})
	if err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	defer p.Dispose()

	fmt.Printf("Loading %s from %s\n", entry, dir)
	mod, err := p.GetModule(ctx, entry)
	if err != nil {
		return fmt.Errorf("load %s: %w", entry, err)
	}

	keys, err := mod.GetKeysAsync(ctx)
	if err != nil {
		return fmt.Errorf("enumerate exports: %w", err)
	}

	fmt.Printf("\nExports:\n")
	for _, k := range keys {
		typ, err := mod.GetType(k)
		if err != nil {
			typ = "?"
		}
		fmt.Printf("  %s: %s\n", k, typ)
	}

	if listOnly {
		return nil
	}

	if funcName == "" {
		if len(keys) == 1 {
			funcName = keys[0]
		} else {
			fmt.Printf("\nNo -func specified and the module does not have exactly one export.\n")
			return nil
		}
	}

	var args []any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return fmt.Errorf("parse -args: %w", err)
	}

	fmt.Printf("\nCalling %s(%v)...\n", funcName, args)
	start := time.Now()
	result, err := mod.CallMethod(ctx, funcName, nil, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}

	fmt.Printf("Result (%s): %v\n", time.Since(start), result)
	return nil
}
