package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/varhub/guestvm"
)

// dirProvider resolves module descriptors against files under a root
// directory: "./util" resolves to root/util.js, a descriptor ending in
// ".json" is read and tagged with Source.Type "json".
type dirProvider struct {
	root string
}

func newDirProvider(root string) *dirProvider {
	return &dirProvider{root: root}
}

func (p *dirProvider) Resolve(ctx context.Context, descriptor string) (*guestvm.Resolved, bool) {
	if strings.Contains(descriptor, "#") {
		return nil, false
	}

	path := descriptor
	if filepath.Ext(path) == "" {
		path += ".js"
	}
	full := filepath.Join(p.root, filepath.FromSlash(path))

	if _, err := os.Stat(full); err != nil {
		return nil, false
	}

	typeHint := ""
	if strings.HasSuffix(full, ".json") {
		typeHint = "json"
	}

	return &guestvm.Resolved{
		Name: descriptor,
		GetSource: func(context.Context) (guestvm.Source, error) {
			data, err := os.ReadFile(full)
			if err != nil {
				return guestvm.Source{}, err
			}
			return guestvm.Source{Text: string(data), Type: typeHint}, nil
		},
	}, true
}
