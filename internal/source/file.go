package source

import (
	"context"
	"os"
	"strings"

	"jbio/internal/bioerr"
	"jbio/internal/fasta"
)

// FileSource loads chain records from a FASTA file named by Query.Path.
type FileSource struct{}

func (FileSource) Name() string { return "file" }

func (FileSource) Fetch(ctx context.Context, q Query) ([]Record, error) {
	if q.Path == "" {
		return nil, &bioerr.Error{Kind: bioerr.MissingData, Op: "source.FileSource", Index: bioerr.NoIndex, Msg: "no path"}
	}
	f, err := os.Open(q.Path)
	if err != nil {
		return nil, bioerr.Retrieval("source.FileSource", err)
	}
	defer f.Close()
	entries, err := fasta.Parse(f)
	if err != nil {
		return nil, bioerr.Retrieval("source.FileSource", err)
	}
	return FromFasta(entries, "file:"+q.Path)
}

// FromFasta converts FASTA entries to records. Every header must name an
// accession and chain (see fasta.ChainHeader). A trailing stop '*' is dropped.
func FromFasta(entries []fasta.Record, origin string) ([]Record, error) {
	recs := make([]Record, 0, len(entries))
	for _, e := range entries {
		acc, id, ok := fasta.ChainHeader(e.Header)
		if !ok {
			return nil, &bioerr.Error{Kind: bioerr.MissingData, Op: "source.FromFasta", Index: bioerr.NoIndex, Msg: "header names no chain: " + e.Header}
		}
		recs = append(recs, Record{
			Accession: acc,
			Chain:     id,
			Sequence:  strings.TrimSuffix(e.Sequence, "*"),
			Origin:    origin,
		})
	}
	return recs, nil
}
