package ncbi

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"

	"jbio/internal/bioerr"
	"jbio/internal/fasta"
	"jbio/internal/source"
)

// Hit is the first HSP of one subject in a BLAST text report. Sequence is
// the subject's aligned region with gap characters removed.
type Hit struct {
	Accession    string
	Chain        byte
	Description  string
	Sequence     string
	SubjectStart int
	Identities   int
	AlignLength  int
}

// Identity returns the HSP percent identity, or 0 when the report had no
// Identities line.
func (h Hit) Identity() float64 {
	if h.AlignLength == 0 {
		return 0
	}
	return 100 * float64(h.Identities) / float64(h.AlignLength)
}

var identRe = regexp.MustCompile(`Identities = (\d+)/(\d+)`)

// ParseHits reads a plain-text BLAST report. Subjects whose definition line
// does not name a PDB chain are skipped. Only the first HSP of each subject
// is kept.
func ParseHits(r io.Reader) ([]Hit, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		hits   []Hit
		cur    *Hit
		seq    strings.Builder
		inHSP  bool
		hspEnd bool
	)
	finish := func() {
		if cur != nil && seq.Len() > 0 {
			cur.Sequence = seq.String()
			hits = append(hits, *cur)
		}
		cur = nil
		seq.Reset()
		inHSP, hspEnd = false, false
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ">"):
			finish()
			acc, id, ok := fasta.ChainHeader(line[1:])
			if !ok {
				continue
			}
			desc := strings.TrimSpace(line[1:])
			if i := strings.IndexAny(desc, " \t"); i >= 0 {
				desc = strings.TrimSpace(desc[i:])
			} else {
				desc = ""
			}
			cur = &Hit{Accession: acc, Chain: id, Description: desc}
		case cur == nil:
		case strings.HasPrefix(line, "Lambda"), strings.HasPrefix(line, "  Database:"):
			finish()
		case strings.HasPrefix(strings.TrimSpace(line), "Score ="):
			if inHSP {
				hspEnd = true
			}
			inHSP = true
		case hspEnd:
		case strings.HasPrefix(strings.TrimSpace(line), "Identities ="):
			if m := identRe.FindStringSubmatch(line); m != nil {
				cur.Identities, _ = strconv.Atoi(m[1])
				cur.AlignLength, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(line, "Sbjct"):
			f := strings.Fields(line)
			if len(f) < 3 {
				continue
			}
			if seq.Len() == 0 {
				cur.SubjectStart, _ = strconv.Atoi(f[1])
			}
			seq.WriteString(strings.ReplaceAll(strings.ToUpper(f[2]), "-", ""))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, bioerr.Retrieval("ncbi.ParseHits", err)
	}
	finish()
	return hits, nil
}

// Source runs a BLAST search for Query.Sequence and returns one record per
// subject chain at or above Query.Identity percent identity.
type Source struct {
	Client *Client
}

func (Source) Name() string { return "blast" }

func (s Source) Fetch(ctx context.Context, q source.Query) ([]source.Record, error) {
	report, err := s.Client.Search(ctx, q.Sequence)
	if err != nil {
		return nil, err
	}
	hits, err := ParseHits(strings.NewReader(report))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var recs []source.Record
	for _, h := range hits {
		if h.Identity() < float64(q.Identity) {
			continue
		}
		key := h.Accession + ":" + string(h.Chain)
		if seen[key] {
			continue
		}
		seen[key] = true
		recs = append(recs, source.Record{
			Accession: h.Accession,
			Chain:     h.Chain,
			Sequence:  h.Sequence,
			Origin:    "blast",
		})
	}
	return recs, nil
}
