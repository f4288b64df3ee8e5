package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jbio/internal/bioerr"
)

type collector struct {
	mu   sync.Mutex
	recs []Record
	fail func(Record) error
}

func (c *collector) commit(r Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		if err := c.fail(r); err != nil {
			return err
		}
	}
	c.recs = append(c.recs, r)
	return nil
}

func static(name string, recs ...Record) Source {
	return SourceFunc{Label: name, Fn: func(ctx context.Context, q Query) ([]Record, error) {
		return recs, nil
	}}
}

func TestAssemblerCommitsFromAllSources(t *testing.T) {
	c := &collector{}
	a := NewAssembler(c.commit, nil,
		static("blast", Record{Accession: "1ABC", Chain: 'A', Sequence: "ACD"}),
		static("cull", Record{Accession: "2XYZ", Chain: 'B', Sequence: "WY", Origin: "pisces"}),
	)

	report, err := a.Run(context.Background(), Query{Sequence: "ACD"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total())
	require.Len(t, c.recs, 2)

	origins := []string{c.recs[0].Origin, c.recs[1].Origin}
	sort.Strings(origins)
	assert.Equal(t, []string{"blast", "pisces"}, origins)
}

func TestAssemblerAdapterFailureIsRetrieval(t *testing.T) {
	c := &collector{}
	blocked := SourceFunc{Label: "slow", Fn: func(ctx context.Context, q Query) ([]Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	broken := SourceFunc{Label: "pdbflex", Fn: func(ctx context.Context, q Query) ([]Record, error) {
		return nil, errors.New("503 service unavailable")
	}}

	_, err := NewAssembler(c.commit, nil, blocked, broken).Run(context.Background(), Query{})
	require.Error(t, err)
	assert.True(t, bioerr.Is(err, bioerr.DataRetrieval))
	assert.Contains(t, err.Error(), "503")
}

func TestAssemblerStopsOnRejectedCommit(t *testing.T) {
	conflict := &bioerr.Error{Kind: bioerr.InconsistentData, Protein: "1ABC", Chain: 'A', Index: 1, Expected: 'C', Found: 'X'}
	c := &collector{fail: func(r Record) error {
		if r.Sequence == "AXD" {
			return conflict
		}
		return nil
	}}
	_, err := NewAssembler(c.commit, nil,
		static("file", Record{Accession: "1ABC", Chain: 'A', Sequence: "AXD"}),
	).Run(context.Background(), Query{})
	assert.True(t, bioerr.Is(err, bioerr.InconsistentData))
	assert.Empty(t, c.recs)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.fasta")
	require.NoError(t, os.WriteFile(path, []byte(">1abc:A\nACD*\n>1ABC_B\nWY\n"), 0o644))

	recs, err := FileSource{}.Fetch(context.Background(), Query{Path: path})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Record{Accession: "1ABC", Chain: 'A', Sequence: "ACD", Origin: "file:" + path}, recs[0])
	assert.Equal(t, byte('B'), recs[1].Chain)

	_, err = FileSource{}.Fetch(context.Background(), Query{Path: filepath.Join(dir, "missing.fasta")})
	assert.True(t, bioerr.Is(err, bioerr.DataRetrieval))

	bad := filepath.Join(dir, "bad.fasta")
	require.NoError(t, os.WriteFile(bad, []byte(">whatever header\nACD\n"), 0o644))
	_, err = FileSource{}.Fetch(context.Background(), Query{Path: bad})
	assert.True(t, bioerr.Is(err, bioerr.MissingData))
}
