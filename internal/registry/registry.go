// Package registry owns the registered Protein aggregates and is the single
// writer allowed to change them.
//
// Every write goes through the consistency validator: a chain that is
// already registered may only be resubmitted with identical residues, and a
// rejected batch leaves the registered aggregate untouched. Accepted batches
// swap in a whole new aggregate.
package registry

import (
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"jbio/internal/bioerr"
	"jbio/internal/chain"
	"jbio/internal/metrics"
	"jbio/internal/protein"
	"jbio/internal/source"
	"jbio/internal/validate"
)

// Outcome describes what a commit did to one chain.
type Outcome int

const (
	// Created registered a new protein.
	Created Outcome = iota
	// Extended added a chain to an existing protein.
	Extended
	// Unchanged resubmitted a chain identical to the registered one.
	Unchanged
	// Annotated replaced a chain with one carrying the same residues and new
	// residue properties.
	Annotated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Extended:
		return "extended"
	case Unchanged:
		return "unchanged"
	case Annotated:
		return "annotated"
	}
	return "unknown"
}

// Commit reports the result for one chain.
type Commit struct {
	Accession string
	Chain     byte
	Outcome   Outcome
	Revision  string
}

type entry struct {
	protein  *protein.Protein
	revision string
}

// Registry maps accessions (case-insensitive) to proteins.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*entry
	validator *validate.Validator
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// New returns an empty registry. Any argument may be nil.
func New(v *validate.Validator, logger *log.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if v == nil {
		v = validate.New(logger, m)
	}
	return &Registry{
		entries:   make(map[string]*entry),
		validator: v,
		logger:    logger,
		metrics:   m,
	}
}

func key(accession string) string {
	return strings.ToUpper(strings.TrimSpace(accession))
}

// Lookup returns the registered aggregate for accession.
func (r *Registry) Lookup(accession string) (*protein.Protein, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key(accession)]
	if !ok {
		return nil, &bioerr.Error{Kind: bioerr.UnrecognizedProtein, Op: "registry.Lookup", Protein: accession, Index: bioerr.NoIndex}
	}
	return e.protein, nil
}

// Snapshot returns the registered aggregate together with the revision it
// was accepted under, read in one critical section.
func (r *Registry) Snapshot(accession string) (*protein.Protein, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key(accession)]
	if !ok {
		return nil, "", &bioerr.Error{Kind: bioerr.UnrecognizedProtein, Op: "registry.Snapshot", Protein: accession, Index: bioerr.NoIndex}
	}
	return e.protein, e.revision, nil
}

// Revision returns the id of the last accepted batch for accession, or "".
func (r *Registry) Revision(accession string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key(accession)]; ok {
		return e.revision
	}
	return ""
}

// Accessions returns the registered accessions, sorted.
func (r *Registry) Accessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.protein.Accession())
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered proteins.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Remove drops a whole aggregate. It reports whether accession was present.
func (r *Registry) Remove(accession string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(accession)
	_, ok := r.entries[k]
	delete(r.entries, k)
	return ok
}

// Commit registers a single chain record.
func (r *Registry) Commit(rec source.Record) (Commit, error) {
	c, err := chain.New(rec.Chain, rec.Sequence)
	if err != nil {
		if e, ok := bioerr.As(err); ok {
			e.Protein = rec.Accession
		}
		r.metrics.ObserveCommit("rejected", r.Len())
		return Commit{}, err
	}
	p, err := protein.New(rec.Accession, c)
	if err != nil {
		r.metrics.ObserveCommit("rejected", r.Len())
		return Commit{}, err
	}
	commits, err := r.CommitProtein(p)
	if err != nil {
		return Commit{}, err
	}
	return commits[0], nil
}

// CommitProtein registers every chain of p as one batch. Chains already
// registered must validate against the incoming residues; the first failure
// rejects the whole batch.
func (r *Registry) CommitProtein(p *protein.Protein) ([]Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(p.Accession())
	cur, exists := r.entries[k]
	if !exists {
		rev := uuid.NewString()
		r.entries[k] = &entry{protein: p, revision: rev}
		commits := make([]Commit, 0, len(p.ChainIDs()))
		for _, id := range p.ChainIDs() {
			commits = append(commits, Commit{Accession: p.Accession(), Chain: id, Outcome: Created, Revision: rev})
		}
		r.metrics.ObserveCommit("created", len(r.entries))
		r.logger.Info("protein registered", "accession", p.Accession(), "chains", len(commits), "revision", rev)
		return commits, nil
	}

	next := cur.protein
	outcomes := make([]Outcome, 0, len(p.ChainIDs()))
	for _, c := range p.AllChains() {
		if cur.protein.HasChain(c.ID()) {
			if err := r.validator.Validate(cur.protein, c.ID(), c.Codes()); err != nil {
				r.metrics.ObserveCommit("rejected", len(r.entries))
				r.logger.Warn("conflicting chain data rejected", "accession", p.Accession(), "chain", string(c.ID()), "err", err)
				return nil, err
			}
			outcomes = append(outcomes, Unchanged)
			continue
		}
		next = next.WithChain(c)
		outcomes = append(outcomes, Extended)
	}

	rev := cur.revision
	result := "unchanged"
	if next != cur.protein {
		rev = uuid.NewString()
		r.entries[k] = &entry{protein: next, revision: rev}
		result = "extended"
		r.logger.Info("protein extended", "accession", p.Accession(), "chains", len(next.ChainIDs()), "revision", rev)
	}
	r.metrics.ObserveCommit(result, len(r.entries))

	commits := make([]Commit, len(outcomes))
	for i, id := range p.ChainIDs() {
		commits[i] = Commit{Accession: cur.protein.Accession(), Chain: id, Outcome: outcomes[i], Revision: rev}
	}
	return commits, nil
}

// Annotate swaps in c for the registered chain with the same id. The codes
// must validate against the registered chain; only residue properties may
// differ.
func (r *Registry) Annotate(accession string, c *chain.Chain) (Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.entries[key(accession)]
	if !ok {
		return Commit{}, &bioerr.Error{Kind: bioerr.UnrecognizedProtein, Op: "registry.Annotate", Protein: accession, Index: bioerr.NoIndex}
	}
	if err := r.validator.Validate(cur.protein, c.ID(), c.Codes()); err != nil {
		r.metrics.ObserveCommit("rejected", len(r.entries))
		return Commit{}, err
	}
	rev := uuid.NewString()
	r.entries[key(accession)] = &entry{protein: cur.protein.WithChain(c), revision: rev}
	r.metrics.ObserveCommit("annotated", len(r.entries))
	r.logger.Info("chain annotated", "accession", cur.protein.Accession(), "chain", string(c.ID()), "revision", rev)
	return Commit{Accession: cur.protein.Accession(), Chain: c.ID(), Outcome: Annotated, Revision: rev}, nil
}
