package rulestore

import (
	"context"
	"fmt"
	"os"
)

// Source loads the current rule snapshot from wherever rules are configured.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// FileSource reads rules from a JSON document on disk.
type FileSource struct {
	Path string
}

// Load implements Source.
func (f FileSource) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rulestore: open %s: %w", f.Path, err)
	}
	defer file.Close()
	return Decode(file)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Snapshot, error)

// Load implements Source.
func (fn SourceFunc) Load(ctx context.Context) (Snapshot, error) { return fn(ctx) }
