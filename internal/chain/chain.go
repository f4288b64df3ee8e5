// Package chain implements the protein chain read model: an identifier and
// an ordered, bounds-checked sequence of residues.
package chain

import (
	"fmt"

	"jbio/internal/bioerr"
	"jbio/internal/residue"
)

// Chain is immutable once built. Accessors hand out copies.
type Chain struct {
	id       byte
	residues []residue.Residue
}

// Option customizes a chain at construction.
type Option func(id byte, rs []residue.Residue) error

// WithProperties sets property p on every residue from values, which must
// have one entry per residue.
func WithProperties(p residue.Property, values []float64) Option {
	return func(id byte, rs []residue.Residue) error {
		if len(values) != len(rs) {
			return &bioerr.Error{
				Kind: bioerr.LengthMismatch, Op: "chain.WithProperties", Chain: id,
				Index: bioerr.NoIndex, Length: len(rs), Other: len(values),
			}
		}
		for i := range rs {
			r, err := rs[i].WithProperty(p, values[i])
			if err != nil {
				e := err.(*bioerr.Error)
				e.Chain = id
				e.Index = i
				return e
			}
			rs[i] = r
		}
		return nil
	}
}

// New builds a chain from one-letter codes. Any unrecognized code fails the
// whole construction.
func New(id byte, codes string, opts ...Option) (*Chain, error) {
	rs, err := residue.ResolveString(codes)
	if err != nil {
		e := err.(*bioerr.Error)
		e.Chain = id
		return nil, e
	}
	for _, opt := range opts {
		if err := opt(id, rs); err != nil {
			return nil, err
		}
	}
	return &Chain{id: id, residues: rs}, nil
}

// FromResidues builds a chain from already-resolved residues.
func FromResidues(id byte, rs []residue.Residue) *Chain {
	cp := make([]residue.Residue, len(rs))
	copy(cp, rs)
	return &Chain{id: id, residues: cp}
}

// With returns a new chain with opts applied to a copy of c's residues.
// Properties already set on c are kept unless an option overwrites them.
func (c *Chain) With(opts ...Option) (*Chain, error) {
	rs := c.Residues()
	for _, opt := range opts {
		if err := opt(c.id, rs); err != nil {
			return nil, err
		}
	}
	return &Chain{id: c.id, residues: rs}, nil
}

// Get returns the residue at index i. Out-of-range indices report whether
// they were too small or too large.
func (c *Chain) Get(i int) (residue.Residue, error) {
	dir := bioerr.NoDirection
	switch {
	case i < 0:
		dir = bioerr.TooSmall
	case i >= len(c.residues):
		dir = bioerr.TooLarge
	default:
		return c.residues[i], nil
	}
	return residue.Residue{}, &bioerr.Error{
		Kind: bioerr.ResidueIndexOutOfBounds, Op: "chain.Get", Chain: c.id,
		Index: i, Length: len(c.residues), Direction: dir,
	}
}

func (c *Chain) Len() int { return len(c.residues) }

func (c *Chain) ID() byte { return c.id }

// Codes returns the chain as a code string.
func (c *Chain) Codes() string { return residue.Codes(c.residues) }

// CodeSlice returns one single-letter string per residue.
func (c *Chain) CodeSlice() []string {
	out := make([]string, len(c.residues))
	for i, r := range c.residues {
		out[i] = r.String()
	}
	return out
}

// Residues returns a copy of the residues.
func (c *Chain) Residues() []residue.Residue {
	cp := make([]residue.Residue, len(c.residues))
	copy(cp, c.residues)
	return cp
}

func (c *Chain) String() string {
	return fmt.Sprintf("%c:%s", c.id, c.Codes())
}
