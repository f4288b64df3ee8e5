// Package fasta reads and writes the FASTA files that carry chain sequences
// in and out of the project (culling script input/output, re-imported chain
// files). Headers are mapped to (accession, chain) pairs by ChainHeader.
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Record is a single FASTA entry (header without '>' and the joined sequence).
type Record struct {
	Header   string
	Sequence string
}

// Parse reads every record from r. Sequence lines may contain letters, '*'
// and '-'; letters are upper-cased and surrounding whitespace is dropped.
// Any other character, or sequence data before the first header, is an
// error naming the line.
func Parse(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var records []Record
	var current *Record
	var seq strings.Builder
	flush := func() {
		if current != nil {
			current.Sequence = seq.String()
			records = append(records, *current)
			seq.Reset()
		}
	}
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, ">") {
			flush()
			current = &Record{Header: strings.TrimSpace(text[1:])}
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("fasta: line %d: sequence data before first header", line)
		}
		for i := 0; i < len(text); i++ {
			c := text[i]
			switch {
			case c >= 'a' && c <= 'z':
				c -= 'a' - 'A'
			case c >= 'A' && c <= 'Z', c == '*', c == '-':
			case c == ' ' || c == '\t':
				continue
			default:
				return nil, fmt.Errorf("fasta: line %d: invalid character %q", line, c)
			}
			seq.WriteByte(c)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fasta: %w", err)
	}
	flush()
	return records, nil
}

// Write emits records with sequences wrapped at cols columns (no wrapping
// when cols <= 0).
func Write(w io.Writer, records []Record, cols int) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, ">%s\n", rec.Header); err != nil {
			return err
		}
		s := rec.Sequence
		width := cols
		if width <= 0 {
			width = len(s) + 1
		}
		for len(s) > width {
			if _, err := fmt.Fprintln(bw, s[:width]); err != nil {
				return err
			}
			s = s[width:]
		}
		if _, err := fmt.Fprintln(bw, s); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ChainHeader extracts the accession and chain identifier from a header.
// Recognized forms (first whitespace-separated token):
//
//	1ABC:A   1ABC_A   1ABCA (PISCES)   pdb|1ABC|A
func ChainHeader(header string) (accession string, chain byte, ok bool) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return "", 0, false
	}
	tok := fields[0]
	if strings.Contains(tok, "|") {
		parts := strings.Split(tok, "|")
		if len(parts) >= 3 && strings.EqualFold(parts[0], "pdb") && parts[1] != "" && len(parts[2]) == 1 {
			return strings.ToUpper(parts[1]), parts[2][0], true
		}
		return "", 0, false
	}
	for _, sep := range []string{":", "_"} {
		if i := strings.LastIndex(tok, sep); i > 0 && i == len(tok)-2 {
			return strings.ToUpper(tok[:i]), tok[i+1], true
		}
	}
	if len(tok) == 5 {
		return strings.ToUpper(tok[:4]), tok[4], true
	}
	return "", 0, false
}
