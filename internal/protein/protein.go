// Package protein implements the Protein aggregate: an accession code and
// its chains, keyed by chain identifier in registration order.
package protein

import (
	"strings"

	"jbio/internal/bioerr"
	"jbio/internal/chain"
)

// Protein is immutable. WithChain returns a new aggregate; replacing the
// registered version is the registry's job.
type Protein struct {
	accession string
	order     []byte
	chains    map[byte]*chain.Chain
}

// New builds a protein from chains. Chain identifiers must be unique.
func New(accession string, chains ...*chain.Chain) (*Protein, error) {
	accession = strings.TrimSpace(accession)
	if accession == "" {
		return nil, &bioerr.Error{Kind: bioerr.MissingData, Op: "protein.New", Index: bioerr.NoIndex, Msg: "empty accession"}
	}
	p := &Protein{accession: accession, chains: make(map[byte]*chain.Chain, len(chains))}
	for _, c := range chains {
		if _, dup := p.chains[c.ID()]; dup {
			return nil, &bioerr.Error{Kind: bioerr.DuplicateChain, Op: "protein.New", Protein: accession, Chain: c.ID(), Index: bioerr.NoIndex}
		}
		p.order = append(p.order, c.ID())
		p.chains[c.ID()] = c
	}
	return p, nil
}

// Accession returns the protein's name.
func (p *Protein) Accession() string { return p.accession }

func (p *Protein) String() string { return p.accession }

// Chain returns the chain registered under id.
func (p *Protein) Chain(id byte) (*chain.Chain, error) {
	c, ok := p.chains[id]
	if !ok {
		return nil, &bioerr.Error{Kind: bioerr.MissingData, Op: "protein.Chain", Protein: p.accession, Chain: id, Index: bioerr.NoIndex, Msg: "no such chain"}
	}
	return c, nil
}

// HasChain reports whether id is registered.
func (p *Protein) HasChain(id byte) bool {
	_, ok := p.chains[id]
	return ok
}

// AllChains returns the chains in registration order.
func (p *Protein) AllChains() []*chain.Chain {
	out := make([]*chain.Chain, len(p.order))
	for i, id := range p.order {
		out[i] = p.chains[id]
	}
	return out
}

// ChainIDs returns the chain identifiers in registration order.
func (p *Protein) ChainIDs() []byte {
	out := make([]byte, len(p.order))
	copy(out, p.order)
	return out
}

// Equal compares proteins by accession. PDB identifiers are case-insensitive.
func (p *Protein) Equal(other *Protein) bool {
	if p == nil || other == nil {
		return p == other
	}
	return strings.EqualFold(p.accession, other.accession)
}

// WithChain returns a copy of p holding c. A chain with the same identifier
// is replaced in place, keeping its position; otherwise c is appended.
func (p *Protein) WithChain(c *chain.Chain) *Protein {
	np := &Protein{
		accession: p.accession,
		order:     make([]byte, len(p.order), len(p.order)+1),
		chains:    make(map[byte]*chain.Chain, len(p.chains)+1),
	}
	copy(np.order, p.order)
	for id, ch := range p.chains {
		np.chains[id] = ch
	}
	if _, ok := np.chains[c.ID()]; !ok {
		np.order = append(np.order, c.ID())
	}
	np.chains[c.ID()] = c
	return np
}
