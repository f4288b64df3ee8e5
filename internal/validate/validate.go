// Package validate checks externally obtained residue sequences against the
// canonical in-memory chain, position by position.
//
// The chain is the source of truth. Validation never repairs data and stops
// at the first mismatch.
package validate

import (
	"io"

	"github.com/charmbracelet/log"

	"jbio/internal/bioerr"
	"jbio/internal/metrics"
	"jbio/internal/protein"
	"jbio/internal/residue"
)

// ConflictReport names the first position where an external sequence
// disagrees with the chain.
type ConflictReport struct {
	Protein  string
	Chain    byte
	Index    int
	Expected byte
	Found    byte
}

// Conflict extracts the report carried by an InconsistentData error.
func Conflict(err error) (ConflictReport, bool) {
	e, ok := bioerr.As(err)
	if !ok || e.Kind != bioerr.InconsistentData {
		return ConflictReport{}, false
	}
	return ConflictReport{Protein: e.Protein, Chain: e.Chain, Index: e.Index, Expected: e.Expected, Found: e.Found}, true
}

// Validator carries only observability hooks; it holds no state between calls.
type Validator struct {
	logger  *log.Logger
	metrics *metrics.Metrics
}

// New returns a Validator. Either argument may be nil.
func New(logger *log.Logger, m *metrics.Metrics) *Validator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Validator{logger: logger, metrics: m}
}

// Validate confirms that external matches chain chainID of p exactly.
func (v *Validator) Validate(p *protein.Protein, chainID byte, external string) error {
	err := Validate(p, chainID, external)
	v.metrics.ObserveValidation(err)
	if err != nil {
		acc := ""
		if p != nil {
			acc = p.Accession()
		}
		v.logger.Debug("validation failed", "protein", acc, "chain", string(chainID), "err", err)
	}
	return err
}

// Validate confirms that external matches chain chainID of p exactly.
//
// Failure order: unknown protein, missing chain, unknown residue code in
// external, length mismatch, first positional conflict.
func Validate(p *protein.Protein, chainID byte, external string) error {
	const op = "validate.Validate"
	if p == nil {
		return &bioerr.Error{Kind: bioerr.UnrecognizedProtein, Op: op, Chain: chainID, Index: bioerr.NoIndex}
	}
	c, err := p.Chain(chainID)
	if err != nil {
		return err
	}
	ext, err := residue.ResolveString(external)
	if err != nil {
		e := err.(*bioerr.Error)
		e.Op = op
		e.Protein = p.Accession()
		e.Chain = chainID
		return e
	}
	if len(ext) != c.Len() || len(ext) == 0 {
		return &bioerr.Error{
			Kind: bioerr.LengthMismatch, Op: op, Protein: p.Accession(), Chain: chainID,
			Index: bioerr.NoIndex, Length: c.Len(), Other: len(ext),
		}
	}
	for i, want := range c.Residues() {
		if want.Code() != ext[i].Code() {
			return &bioerr.Error{
				Kind: bioerr.InconsistentData, Op: op, Protein: p.Accession(), Chain: chainID,
				Index: i, Expected: want.Code(), Found: ext[i].Code(),
			}
		}
	}
	return nil
}
