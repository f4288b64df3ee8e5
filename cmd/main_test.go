package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jbio/internal/align"
	"jbio/internal/bioerr"
	"jbio/internal/config"
	"jbio/internal/registry"
	"jbio/internal/source"
	"jbio/internal/store"
	"jbio/internal/validate"
)

func testApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	engine, err := align.NewEngine(align.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	val := validate.New(nil, nil)
	var out bytes.Buffer
	return &app{
		cfg:    config.Default(),
		logger: log.New(io.Discard),
		reg:    registry.New(val, nil, nil),
		val:    val,
		engine: engine,
		out:    &out,
	}, &out
}

func writeFasta(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.fasta")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseTarget(t *testing.T) {
	acc, id, err := parseTarget("1abc:B")
	require.NoError(t, err)
	assert.Equal(t, "1ABC", acc)
	assert.Equal(t, byte('B'), id)

	_, _, err = parseTarget("1abc")
	assert.True(t, bioerr.Is(err, bioerr.MissingData))
}

func TestIngestThenCheck(t *testing.T) {
	a, out := testApp(t)
	in := writeFasta(t, ">1ABC:A\nACD\n>1ABC:B\nWY\n")
	require.NoError(t, a.ingest(context.Background(), in, false, nil, 0))
	assert.Equal(t, 1, a.reg.Len())

	check := writeFasta(t, ">1ABC:A\nACD\n>1ABC:B\nWF\n")
	err := a.check(check)
	require.Error(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "OK   1ABC:A", lines[0])
	assert.Contains(t, lines[1], "FAIL 1ABC:B")
	assert.Contains(t, lines[1], "expected Y, found F")
}

func TestIngestReportsConflict(t *testing.T) {
	a, out := testApp(t)
	in := writeFasta(t, ">1ABC:A\nACD\n>1ABC:A\nAXD\n")
	err := a.ingest(context.Background(), in, false, nil, 0)
	assert.True(t, bioerr.Is(err, bioerr.InconsistentData))
	assert.Equal(t, "CONFLICT 1ABC:A at 1: expected C, found X\n", out.String())
}

func TestAlignOne(t *testing.T) {
	a, out := testApp(t)
	in := writeFasta(t, ">1ABC:A\nACDEFG\n")
	require.NoError(t, a.ingest(context.Background(), in, false, nil, 0))

	require.NoError(t, a.alignOne("1ABC:A", "acdfg"))
	assert.Contains(t, out.String(), "ACDEFG\n  ACD-FG")

	out.Reset()
	err := a.alignOne("1ABC:A", "WWWWWW")
	assert.True(t, bioerr.Is(err, bioerr.ResidueAlignment))
	assert.Contains(t, out.String(), "rejected")

	err = a.alignOne("9ZZZ:A", "ACD")
	assert.True(t, bioerr.Is(err, bioerr.UnrecognizedProtein))
}

func hitSource(recs ...source.Record) source.Source {
	return source.SourceFunc{Label: "blast", Fn: func(ctx context.Context, q source.Query) ([]source.Record, error) {
		return recs, nil
	}}
}

func TestQueryHitsAreReconciledNotRegistered(t *testing.T) {
	a, out := testApp(t)
	// a hit spans only the aligned region of its subject chain
	hits := hitSource(
		source.Record{Accession: "1ABC", Chain: 'A', Sequence: "ACDEFHIKL", Origin: "blast"},
		source.Record{Accession: "9ZZZ", Chain: 'B', Sequence: "ACD", Origin: "blast"},
	)

	require.NoError(t, a.queryHits(context.Background(), hits, "ACDEFHIKL", 0))
	assert.Equal(t, 0, a.reg.Len())
	assert.Contains(t, out.String(), "SKIP 1ABC:A not registered")

	in := writeFasta(t, ">1ABC:A\nMKACDEFHIKLQRS\n")
	require.NoError(t, a.ingest(context.Background(), in, false, nil, 0))

	out.Reset()
	require.NoError(t, a.queryHits(context.Background(), hits, "ACDEFHIKL", 0))
	assert.Contains(t, out.String(), "1ABC:A score=")
	assert.Contains(t, out.String(), "reconciled")
	assert.Contains(t, out.String(), "SKIP 9ZZZ:B not registered")

	p, err := a.reg.Lookup("1ABC")
	require.NoError(t, err)
	c, err := p.Chain('A')
	require.NoError(t, err)
	assert.Equal(t, "MKACDEFHIKLQRS", c.Codes())
}

func TestBlastChainReconcilesAgainstTarget(t *testing.T) {
	a, out := testApp(t)
	in := writeFasta(t, ">1ABC:A\nMKACDEFHIKLQRS\n")
	require.NoError(t, a.ingest(context.Background(), in, false, nil, 0))

	hits := hitSource(source.Record{Accession: "2XYZ", Chain: 'C', Sequence: "ACDEFHIKL", Origin: "blast"})
	require.NoError(t, a.blastChain(context.Background(), hits, "1ABC:A", 0))
	assert.Contains(t, out.String(), "2XYZ:C score=")
	assert.Equal(t, 1, a.reg.Len())
}

func TestRunReturnsStatusAfterFailedStep(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "jbio.db")
	in := writeFasta(t, ">1ABC:A\nACD\n")
	check := filepath.Join(dir, "check.fasta")
	require.NoError(t, os.WriteFile(check, []byte(">1ABC:A\nAWD\n"), 0o644))

	var out bytes.Buffer
	status := run([]string{"-config", filepath.Join(dir, "none.json"), "-db", db, "-in", in, "-check", check}, &out)
	assert.Equal(t, 1, status)
	assert.Contains(t, out.String(), "FAIL 1ABC:A")

	// the registry was still saved and the database closed cleanly
	st, err := store.Open(db, nil)
	require.NoError(t, err)
	defer st.Close()
	list, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Chains)

	assert.Equal(t, 2, run([]string{"-no-such-flag"}, &out))
}
