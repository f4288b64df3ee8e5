// Package source defines the narrow boundary between the protein core and
// the external data adapters (BLAST, culling script, files), and assembles
// their output into the registry.
package source

import (
	"context"
	"fmt"
)

// Record is the plain data an adapter hands back: one chain's residue codes.
// Adapters never hold references into the protein model.
type Record struct {
	Accession string
	Chain     byte
	Sequence  string
	Origin    string
}

func (r Record) String() string {
	return fmt.Sprintf("%s:%c (%d residues, %s)", r.Accession, r.Chain, len(r.Sequence), r.Origin)
}

// Query is what a Source is asked for. Sources read the fields they need and
// ignore the rest.
type Query struct {
	Accession string
	Chain     byte
	Sequence  string
	Path      string
	Identity  int
}

// Source is an external adapter.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	Label string
	Fn    func(ctx context.Context, q Query) ([]Record, error)
}

func (f SourceFunc) Name() string { return f.Label }

func (f SourceFunc) Fetch(ctx context.Context, q Query) ([]Record, error) {
	return f.Fn(ctx, q)
}
