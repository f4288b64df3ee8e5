// Package culling wraps the external sequence-culling script (a PISCES-style
// Perl program that removes chains above a percent-identity cutoff) and
// reads its FASTA output back as chain records.
package culling

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"jbio/internal/bioerr"
	"jbio/internal/fasta"
	"jbio/internal/metrics"
	"jbio/internal/source"
)

const (
	MinPercent = 5
	MaxPercent = 100
)

// Runner invokes Interpreter Args... Script -i <input> -p <pct>.
type Runner struct {
	Interpreter string
	Script      string
	Args        []string
	Timeout     time.Duration
	Logger      *log.Logger
	Metrics     *metrics.Metrics
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.New(io.Discard)
	}
	return r.Logger
}

func (r *Runner) command(ctx context.Context, path string, pct int) *exec.Cmd {
	interp := r.Interpreter
	if interp == "" {
		interp = "perl"
	}
	args := append([]string{}, r.Args...)
	args = append(args, r.Script, "-i", path, "-p", strconv.Itoa(pct))
	return exec.CommandContext(ctx, interp, args...)
}

// Cull runs the script on the FASTA file at path with a pct identity cutoff
// in [MinPercent, MaxPercent]. A non-zero exit is DataRetrieval carrying the
// script's stderr.
func (r *Runner) Cull(ctx context.Context, path string, pct int) ([]source.Record, error) {
	const op = "culling.Cull"
	if pct < MinPercent || pct > MaxPercent {
		return nil, bioerr.OutOfRange(op, float64(pct), MinPercent, MaxPercent)
	}
	if r.Script == "" {
		return nil, &bioerr.Error{Kind: bioerr.MissingData, Op: op, Index: bioerr.NoIndex, Msg: "no culling script configured"}
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := r.command(ctx, path, pct)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.Metrics.ObserveFetch("culling", time.Since(start).Seconds(), err)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		r.logger().Error("culling script failed", "script", r.Script, "pct", pct, "err", err)
		return nil, &bioerr.Error{Kind: bioerr.DataRetrieval, Op: op, Index: bioerr.NoIndex, Msg: msg, Err: err}
	}

	entries, err := fasta.Parse(&stdout)
	if err != nil {
		return nil, bioerr.Retrieval(op, err)
	}
	recs, err := source.FromFasta(entries, "cull")
	if err != nil {
		return nil, err
	}
	r.logger().Info("culling complete", "input", path, "pct", pct, "kept", len(recs))
	return recs, nil
}

// CullRecords writes recs to a temporary FASTA file and culls it.
func (r *Runner) CullRecords(ctx context.Context, recs []source.Record, pct int) ([]source.Record, error) {
	tf, err := os.CreateTemp("", "jbio-cull-*.fasta")
	if err != nil {
		return nil, bioerr.Retrieval("culling.CullRecords", err)
	}
	defer os.Remove(tf.Name())

	entries := make([]fasta.Record, len(recs))
	for i, rec := range recs {
		entries[i] = fasta.Record{Header: rec.Accession + ":" + string(rec.Chain), Sequence: rec.Sequence}
	}
	werr := fasta.Write(tf, entries, 80)
	if cerr := tf.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return nil, bioerr.Retrieval("culling.CullRecords", werr)
	}
	return r.Cull(ctx, tf.Name(), pct)
}

// Source adapts a Runner: Query.Path is the input file and Query.Identity
// the cutoff.
type Source struct {
	Runner *Runner
}

func (Source) Name() string { return "culling" }

func (s Source) Fetch(ctx context.Context, q source.Query) ([]source.Record, error) {
	return s.Runner.Cull(ctx, q.Path, q.Identity)
}
