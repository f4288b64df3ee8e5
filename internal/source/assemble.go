package source

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"jbio/internal/bioerr"
)

// CommitFunc hands one record to the single writer (the registry).
type CommitFunc func(Record) error

// Assembler queries several sources at once and feeds every record they
// return through a CommitFunc. Fetches run concurrently; the CommitFunc is
// expected to serialize writes itself. Adapters record their own fetch
// metrics.
type Assembler struct {
	sources []Source
	commit  CommitFunc
	logger  *log.Logger
}

// NewAssembler wires sources to commit. logger may be nil.
func NewAssembler(commit CommitFunc, logger *log.Logger, sources ...Source) *Assembler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Assembler{sources: sources, commit: commit, logger: logger}
}

// Report lists what one Run committed, per source.
type Report struct {
	mu        sync.Mutex
	Committed map[string][]Record
}

func (r *Report) add(name string, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Committed[name] = append(r.Committed[name], rec)
}

// Total returns the number of committed records.
func (r *Report) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, recs := range r.Committed {
		n += len(recs)
	}
	return n
}

// Run fetches q from every source. The first failure, whether an adapter
// error or a rejected commit, cancels the remaining fetches and is returned.
// Adapter errors that are not already tagged come back as DataRetrieval.
func (a *Assembler) Run(ctx context.Context, q Query) (*Report, error) {
	report := &Report{Committed: make(map[string][]Record)}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range a.sources {
		s := s
		g.Go(func() error {
			recs, err := s.Fetch(gctx, q)
			if err != nil {
				if bioerr.KindOf(err) == bioerr.Unknown {
					err = bioerr.Retrieval(s.Name(), err)
				}
				a.logger.Error("source failed", "source", s.Name(), "err", err)
				return err
			}
			a.logger.Debug("source fetched", "source", s.Name(), "records", len(recs))
			for _, rec := range recs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if rec.Origin == "" {
					rec.Origin = s.Name()
				}
				if err := a.commit(rec); err != nil {
					a.logger.Warn("record rejected", "source", s.Name(), "record", rec.String(), "err", err)
					return err
				}
				report.add(s.Name(), rec)
			}
			return nil
		})
	}
	err := g.Wait()
	return report, err
}
