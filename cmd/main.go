package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"jbio/internal/align"
	"jbio/internal/bioerr"
	"jbio/internal/chain"
	"jbio/internal/config"
	"jbio/internal/culling"
	"jbio/internal/fasta"
	"jbio/internal/logging"
	"jbio/internal/metrics"
	"jbio/internal/ncbi"
	"jbio/internal/pdbflex"
	"jbio/internal/registry"
	"jbio/internal/source"
	"jbio/internal/store"
	"jbio/internal/validate"
)

// version is the program version. It can be overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

// app bundles what the individual steps share.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	metrics *metrics.Metrics
	reg     *registry.Registry
	val     *validate.Validator
	engine  *align.Engine
	out     io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes the requested steps and returns the exit status. Its defers
// flush the BLAST cache and close the database before main exits.
func run(args []string, stdout io.Writer) int {
	// CLI flags
	fs := flag.NewFlagSet("jbio", flag.ContinueOnError)
	inputFlag := fs.String("in", "", "FASTA file of chains to register")
	configFlag := fs.String("config", "", "path to config.json or config.yaml (optional)")
	dbFlag := fs.String("db", "", "sqlite database path (overrides config)")
	checkFlag := fs.String("check", "", "FASTA file of external sequences to validate against registered chains")
	alignFlag := fs.String("align", "", "chain to align against -seq, as ACC:CHAIN")
	seqFlag := fs.String("seq", "", "external sequence for -align")
	blastFlag := fs.String("blast", "", "BLAST a registered chain (ACC:CHAIN) and reconcile the PDB hits against it")
	queryFlag := fs.String("query", "", "BLAST this sequence and reconcile every PDB hit against its registered chain")
	identityFlag := fs.Int("identity", 0, "minimum percent identity for BLAST hits, or culling cutoff with -cull")
	cullFlag := fs.Bool("cull", false, "run -in through the culling script before registering")
	flexFlag := fs.String("flex", "", "annotate a registered chain (ACC:CHAIN) with PDBFlex flexibility")
	dryRun := fs.Bool("dry-run", false, "do not write the database")
	verbose := fs.Bool("verbose", false, "enable verbose (debug) logging")
	versionFlag := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *versionFlag {
		fmt.Fprintln(stdout, "jbio", version)
		return 0
	}

	// load config (optional file)
	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		return 2
	}
	// merge CLI flags into config (flags override config when provided)
	if *inputFlag != "" {
		cfg.InputFasta = *inputFlag
	}
	if *dbFlag != "" {
		cfg.DatabasePath = *dbFlag
	}

	logger, closeLog := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel, Verbose: *verbose})
	defer closeLog()
	logger.Debug("loaded config", "input_fasta", cfg.InputFasta, "database_path", cfg.DatabasePath, "log_file", cfg.LogFile, "log_level", cfg.LogLevel, "align_mode", cfg.AlignMode)

	ac, err := cfg.Align()
	if err != nil {
		logger.Error("invalid alignment settings", "err", err)
		return 2
	}
	m := metrics.New()
	val := validate.New(logger, m)
	engine, err := align.NewEngine(ac, logger, m)
	if err != nil {
		logger.Error("invalid alignment settings", "err", err)
		return 2
	}
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		reg:     registry.New(val, logger, m),
		val:     val,
		engine:  engine,
		out:     stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var db *store.Store
	if cfg.DatabasePath != "" {
		db, err = store.Open(cfg.DatabasePath, logger)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.DatabasePath, "err", err)
			return 1
		}
		defer db.Close()
		if _, err := db.Restore(ctx, a.reg); err != nil {
			logger.Error("stored proteins failed validation", "path", cfg.DatabasePath, "err", err)
			return 1
		}
	}

	blast := ncbi.NewClient(cfg.Blast(), ncbi.WithLogger(logger), ncbi.WithMetrics(m))
	defer func() {
		if err := blast.Flush(); err != nil {
			logger.Warn("failed to write blast cache", "err", err)
		}
	}()
	logger.Info("starting jbio", "version", version, "registered", a.reg.Len(), "ncbi_cache_path", cfg.NcbiCachePath, "ncbi_cache_ttl_secs", cfg.NcbiCacheTTLSecs)

	status := 0
	fail := func(step string, err error) {
		logger.Error(step+" failed", "err", err)
		status = 1
	}

	if cfg.InputFasta != "" {
		runner := cfg.Culling()
		runner.Logger, runner.Metrics = logger, m
		if err := a.ingest(ctx, cfg.InputFasta, *cullFlag, runner, *identityFlag); err != nil {
			fail("ingest", err)
		}
	}
	if *queryFlag != "" {
		if err := a.queryHits(ctx, ncbi.Source{Client: blast}, *queryFlag, *identityFlag); err != nil {
			fail("query", err)
		}
	}
	if *checkFlag != "" {
		if err := a.check(*checkFlag); err != nil {
			fail("check", err)
		}
	}
	if *alignFlag != "" {
		if err := a.alignOne(*alignFlag, *seqFlag); err != nil {
			fail("align", err)
		}
	}
	if *blastFlag != "" {
		if err := a.blastChain(ctx, ncbi.Source{Client: blast}, *blastFlag, *identityFlag); err != nil {
			fail("blast", err)
		}
	}
	if *flexFlag != "" {
		flex := pdbflex.NewClient(cfg.PdbflexURL, cfg.PdbflexTimeout(), logger, m)
		if err := a.annotate(ctx, flex, *flexFlag); err != nil {
			fail("flex", err)
		}
	}

	switch {
	case db == nil:
	case *dryRun:
		logger.Info("dry-run: would save registry", "path", cfg.DatabasePath, "proteins", a.reg.Len())
	default:
		n, err := db.SaveRegistry(ctx, a.reg)
		if err != nil {
			fail("save", err)
		} else {
			logger.Info("saved registry", "path", cfg.DatabasePath, "proteins", n)
		}
	}
	return status
}

// parseTarget reads ACC:CHAIN (or any form fasta.ChainHeader accepts).
func parseTarget(s string) (string, byte, error) {
	acc, id, ok := fasta.ChainHeader(s)
	if !ok {
		return "", 0, &bioerr.Error{Kind: bioerr.MissingData, Op: "target", Index: bioerr.NoIndex, Msg: fmt.Sprintf("%q is not ACC:CHAIN", s)}
	}
	return acc, id, nil
}

// ingest registers chains from the input file, optionally culled first.
func (a *app) ingest(ctx context.Context, path string, cull bool, runner *culling.Runner, identity int) error {
	var src source.Source = source.FileSource{}
	if cull {
		src = culling.Source{Runner: runner}
	}
	commit := func(rec source.Record) error {
		_, err := a.reg.Commit(rec)
		return err
	}
	start := time.Now()
	report, err := source.NewAssembler(commit, a.logger, src).Run(ctx, source.Query{Path: path, Identity: identity})
	if err != nil {
		if c, ok := validate.Conflict(err); ok {
			fmt.Fprintf(a.out, "CONFLICT %s:%c at %d: expected %c, found %c\n", c.Protein, c.Chain, c.Index, c.Expected, c.Found)
		}
		return err
	}
	for name, recs := range report.Committed {
		a.logger.Info("registered chains", "source", name, "records", len(recs))
	}
	a.logger.Info("ingest complete", "records", report.Total(), "proteins", a.reg.Len(), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// check validates every record of a FASTA file against the registry and
// prints one line per record. Any failure makes the whole check fail.
func (a *app) check(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return bioerr.Retrieval("check", err)
	}
	defer f.Close()
	entries, err := fasta.Parse(f)
	if err != nil {
		return bioerr.Retrieval("check", err)
	}
	recs, err := source.FromFasta(entries, "file:"+path)
	if err != nil {
		return err
	}
	failed := 0
	for _, rec := range recs {
		p, err := a.reg.Lookup(rec.Accession)
		if err == nil {
			err = a.val.Validate(p, rec.Chain, rec.Sequence)
		}
		if err != nil {
			failed++
			fmt.Fprintf(a.out, "FAIL %s:%c %v\n", rec.Accession, rec.Chain, err)
			continue
		}
		fmt.Fprintf(a.out, "OK   %s:%c\n", rec.Accession, rec.Chain)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sequences failed validation", failed, len(recs))
	}
	return nil
}

func (a *app) printAlignment(label string, res align.Result) {
	verdict := "reconciled"
	if !res.Reconciled {
		verdict = "rejected: " + res.Reason
	}
	fmt.Fprintf(a.out, "%s score=%d identity=%.3f %s\n  %s\n  %s\n", label, res.Score, res.Identity, verdict, res.AlignedA, res.AlignedB)
}

// alignOne reconciles one registered chain with an external sequence.
func (a *app) alignOne(target, seq string) error {
	acc, id, err := parseTarget(target)
	if err != nil {
		return err
	}
	p, err := a.reg.Lookup(acc)
	if err != nil {
		return err
	}
	c, err := p.Chain(id)
	if err != nil {
		return err
	}
	res, err := a.engine.Reconcile(c, strings.ToUpper(strings.TrimSpace(seq)))
	if err != nil {
		return err
	}
	a.printAlignment(target, res)
	return res.Err()
}

// reconcileHit aligns one search hit against c and prints the verdict. Hits
// are never registered: a hit covers only the aligned region of its subject.
func (a *app) reconcileHit(c *chain.Chain, rec source.Record) bool {
	res, err := a.engine.Reconcile(c, rec.Sequence)
	if err != nil {
		a.logger.Warn("hit skipped", "hit", rec.String(), "err", err)
		return false
	}
	a.printAlignment(fmt.Sprintf("%s:%c", rec.Accession, rec.Chain), res)
	return res.Reconciled
}

// queryHits searches with a free sequence and reconciles each hit against
// the registered chain it names. Hits on unregistered chains are listed and
// skipped.
func (a *app) queryHits(ctx context.Context, src source.Source, query string, identity int) error {
	recs, err := src.Fetch(ctx, source.Query{Sequence: query, Identity: identity})
	if err != nil {
		return err
	}
	reconciled, skipped := 0, 0
	for _, rec := range recs {
		p, err := a.reg.Lookup(rec.Accession)
		var c *chain.Chain
		if err == nil {
			c, err = p.Chain(rec.Chain)
		}
		if err != nil {
			skipped++
			fmt.Fprintf(a.out, "SKIP %s:%c not registered\n", rec.Accession, rec.Chain)
			continue
		}
		if a.reconcileHit(c, rec) {
			reconciled++
		}
	}
	a.logger.Info("query reconciliation", "source", src.Name(), "hits", len(recs), "reconciled", reconciled, "unregistered", skipped)
	return nil
}

// blastChain searches the PDB with a registered chain and reconciles every
// hit's subject sequence against it. Unreconciled hits are reported, not
// fatal.
func (a *app) blastChain(ctx context.Context, src source.Source, target string, identity int) error {
	acc, id, err := parseTarget(target)
	if err != nil {
		return err
	}
	p, err := a.reg.Lookup(acc)
	if err != nil {
		return err
	}
	c, err := p.Chain(id)
	if err != nil {
		return err
	}
	recs, err := src.Fetch(ctx, source.Query{Sequence: c.Codes(), Identity: identity})
	if err != nil {
		return err
	}
	reconciled := 0
	for _, rec := range recs {
		if a.reconcileHit(c, rec) {
			reconciled++
		}
	}
	a.logger.Info("blast reconciliation", "target", target, "hits", len(recs), "reconciled", reconciled)
	return nil
}

// annotate attaches PDBFlex flexibility to a registered chain.
func (a *app) annotate(ctx context.Context, flex *pdbflex.Client, target string) error {
	acc, id, err := parseTarget(target)
	if err != nil {
		return err
	}
	p, err := a.reg.Lookup(acc)
	if err != nil {
		return err
	}
	c, err := p.Chain(id)
	if err != nil {
		return err
	}
	annotated, err := flex.Annotate(ctx, p.Accession(), c)
	if err != nil {
		return err
	}
	commit, err := a.reg.Annotate(p.Accession(), annotated)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s flexibility set on %d residues (revision %s)\n", target, annotated.Len(), commit.Revision)
	return nil
}
