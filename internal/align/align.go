// Package align lines up two residue sequences with an O(n·m) dynamic
// programming alignment and reports the index correspondence between them.
//
// Equal-scoring alternatives are broken deterministically: traceback from the
// end prefers a diagonal step, then a gap in the second sequence, then a gap
// in the first. Walking backwards with diagonals first pushes every gap to
// its leftmost possible position.
package align

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"jbio/internal/bioerr"
	"jbio/internal/chain"
	"jbio/internal/metrics"
	"jbio/internal/residue"
)

// Gap is the character used for gap columns in AlignedA and AlignedB.
const Gap = '-'

// Result is the outcome of one alignment. When Reconciled is false, Reason
// says which threshold was missed; this is a normal outcome, not an error.
type Result struct {
	// Mapping[i] is the index in B aligned to A[i], or -1 when A[i] faces a
	// gap or lies outside a local alignment.
	Mapping    []int
	Score      int
	Matches    int
	Columns    int
	Identity   float64
	AlignedA   string
	AlignedB   string
	Reconciled bool
	Reason     string
}

// Err returns a ResidueAlignment error when r was not reconciled.
func (r Result) Err() error {
	if r.Reconciled {
		return nil
	}
	return &bioerr.Error{Kind: bioerr.ResidueAlignment, Op: "align", Index: bioerr.NoIndex, Msg: r.Reason}
}

// Engine aligns sequences under a fixed Config. It keeps no state between
// calls and is safe for concurrent use.
type Engine struct {
	cfg     Config
	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewEngine validates cfg. logger and m may be nil.
func NewEngine(cfg Config, logger *log.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Engine{cfg: cfg, logger: logger, metrics: m}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Align resolves both code strings and aligns them.
func (e *Engine) Align(a, b string) (Result, error) {
	if len(a) == 0 || len(b) == 0 {
		e.metrics.ObserveAlignment("error")
		return Result{}, emptyInput(len(a), len(b))
	}
	ra, err := residue.ResolveString(a)
	if err != nil {
		e.metrics.ObserveAlignment("error")
		return Result{}, relabel(err, "align.Align", "a")
	}
	rb, err := residue.ResolveString(b)
	if err != nil {
		e.metrics.ObserveAlignment("error")
		return Result{}, relabel(err, "align.Align", "b")
	}
	return e.AlignResidues(ra, rb)
}

// Reconcile aligns chain c (as A) against an external code string (as B).
func (e *Engine) Reconcile(c *chain.Chain, external string) (Result, error) {
	if c.Len() == 0 || len(external) == 0 {
		e.metrics.ObserveAlignment("error")
		err := emptyInput(c.Len(), len(external))
		err.Chain = c.ID()
		return Result{}, err
	}
	rb, err := residue.ResolveString(external)
	if err != nil {
		e.metrics.ObserveAlignment("error")
		be := relabel(err, "align.Reconcile", "external").(*bioerr.Error)
		be.Chain = c.ID()
		return Result{}, be
	}
	return e.AlignResidues(c.Residues(), rb)
}

// AlignResidues aligns two already-resolved sequences.
func (e *Engine) AlignResidues(a, b []residue.Residue) (Result, error) {
	if len(a) == 0 || len(b) == 0 {
		e.metrics.ObserveAlignment("error")
		return Result{}, emptyInput(len(a), len(b))
	}
	ca := []byte(residue.Codes(a))
	cb := []byte(residue.Codes(b))

	res := run(ca, cb, e.cfg.Scoring, e.cfg.Mode)
	e.judge(&res)
	if res.Reconciled {
		e.metrics.ObserveAlignment("reconciled")
	} else {
		e.metrics.ObserveAlignment("rejected")
		e.logger.Debug("alignment rejected", "reason", res.Reason, "identity", res.Identity, "score", res.Score)
	}
	return res, nil
}

func (e *Engine) judge(r *Result) {
	if r.Columns > 0 {
		r.Identity = float64(r.Matches) / float64(r.Columns)
	}
	switch {
	case r.Columns == 0:
		r.Reason = "no aligned region"
	case r.Identity < e.cfg.MinIdentity:
		r.Reason = fmt.Sprintf("identity %.3f below minimum %.3f", r.Identity, e.cfg.MinIdentity)
	case r.Matches < e.cfg.MinAligned:
		r.Reason = fmt.Sprintf("%d matching residues, need %d", r.Matches, e.cfg.MinAligned)
	default:
		r.Reconciled = true
	}
}

func emptyInput(la, lb int) *bioerr.Error {
	return &bioerr.Error{
		Kind: bioerr.ResidueAlignment, Op: "align", Index: bioerr.NoIndex,
		Length: la, Other: lb, Msg: "empty input sequence",
	}
}

func relabel(err error, op, which string) error {
	e, ok := bioerr.As(err)
	if !ok {
		return err
	}
	e.Op = op
	e.Msg = "sequence " + which
	return e
}

// run fills the DP matrix and traces back one optimal alignment.
func run(a, b []byte, s Scoring, mode Mode) Result {
	n, m := len(a), len(b)
	w := m + 1
	score := make([]int, (n+1)*w)
	at := func(i, j int) int { return i*w + j }

	if mode == Global {
		for i := 1; i <= n; i++ {
			score[at(i, 0)] = i * s.Gap
		}
		for j := 1; j <= m; j++ {
			score[at(0, j)] = j * s.Gap
		}
	}

	bestI, bestJ, best := n, m, 0
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			v := score[at(i-1, j-1)] + s.score(a[i-1], b[j-1])
			if up := score[at(i-1, j)] + s.Gap; up > v {
				v = up
			}
			if left := score[at(i, j-1)] + s.Gap; left > v {
				v = left
			}
			if mode == Local {
				if v < 0 {
					v = 0
				}
				if v > best {
					best, bestI, bestJ = v, i, j
				}
			}
			score[at(i, j)] = v
		}
	}
	if mode == Local && best == 0 {
		bestI, bestJ = 0, 0
	}

	mapping := make([]int, n)
	for i := range mapping {
		mapping[i] = -1
	}
	var ra, rb []byte
	matches := 0
	i, j := bestI, bestJ
	for i > 0 || j > 0 {
		if mode == Local && score[at(i, j)] == 0 {
			break
		}
		cur := score[at(i, j)]
		switch {
		case i > 0 && j > 0 && cur == score[at(i-1, j-1)]+s.score(a[i-1], b[j-1]):
			i--
			j--
			mapping[i] = j
			if a[i] == b[j] {
				matches++
			}
			ra = append(ra, a[i])
			rb = append(rb, b[j])
		case i > 0 && (j == 0 || cur == score[at(i-1, j)]+s.Gap):
			i--
			ra = append(ra, a[i])
			rb = append(rb, Gap)
		default:
			j--
			ra = append(ra, Gap)
			rb = append(rb, b[j])
		}
	}
	reverse(ra)
	reverse(rb)

	return Result{
		Mapping:  mapping,
		Score:    score[at(bestI, bestJ)],
		Matches:  matches,
		Columns:  len(ra),
		AlignedA: string(ra),
		AlignedB: string(rb),
	}
}

func reverse(b []byte) {
	for l, r := 0, len(b)-1; l < r; l, r = l+1, r-1 {
		b[l], b[r] = b[r], b[l]
	}
}
