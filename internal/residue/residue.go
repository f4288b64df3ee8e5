// Package residue holds the amino-acid alphabet and the validated Residue
// value built from it.
package residue

import (
	"math"

	"jbio/internal/bioerr"
)

// Standard holds the twenty standard amino acids.
const Standard = "ACDEFGHIKLMNPQRSTVWY"

// Ambiguous holds the ambiguity codes accepted alongside the standard set:
// B (D or N), Z (E or Q), J (I or L) and X (unknown).
const Ambiguous = "BZJX"

var valid [256]bool

func init() {
	for _, c := range []byte(Standard + Ambiguous) {
		valid[c] = true
	}
}

// Alphabet returns every recognized code.
func Alphabet() string {
	return Standard + Ambiguous
}

func normalize(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// IsValid reports whether c (in either case) is a recognized code.
func IsValid(c byte) bool {
	return valid[normalize(c)]
}

// Property names a numeric, probability-like residue attribute.
type Property int

const (
	Disorder Property = iota
	Flexibility
	Confidence
	numProperties
)

// Properties lists every known property.
func Properties() []Property {
	return []Property{Disorder, Flexibility, Confidence}
}

// ParseProperty is the inverse of Property.String.
func ParseProperty(s string) (Property, bool) {
	for _, p := range Properties() {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

func (p Property) String() string {
	switch p {
	case Disorder:
		return "disorder"
	case Flexibility:
		return "flexibility"
	case Confidence:
		return "confidence"
	}
	return "unknown"
}

// Residue is one validated amino acid. The zero value is not valid; build
// residues with Resolve.
type Residue struct {
	code  byte
	set   uint8
	props [numProperties]float64
}

// Resolve validates c and returns the matching Residue.
func Resolve(c byte) (Residue, error) {
	n := normalize(c)
	if !valid[n] {
		return Residue{}, &bioerr.Error{Kind: bioerr.UnknownCode, Op: "residue.Resolve", Found: c, Index: bioerr.NoIndex}
	}
	return Residue{code: n}, nil
}

// ResolveString resolves every byte of codes. The error of the first
// unrecognized code carries its index.
func ResolveString(codes string) ([]Residue, error) {
	rs := make([]Residue, len(codes))
	for i := 0; i < len(codes); i++ {
		r, err := Resolve(codes[i])
		if err != nil {
			e := err.(*bioerr.Error)
			e.Index = i
			return nil, e
		}
		rs[i] = r
	}
	return rs, nil
}

// Code returns the canonical uppercase one-letter code.
func (r Residue) Code() byte { return r.code }

func (r Residue) String() string { return string(r.code) }

// Property returns the value of p and whether it has been set.
func (r Residue) Property(p Property) (float64, bool) {
	if p < 0 || p >= numProperties {
		return 0, false
	}
	return r.props[p], r.set&(1<<p) != 0
}

// WithProperty returns a copy of r with p set to v. Values outside [0,1]
// (NaN included) fail with ValueOutOfRange and r is not modified.
func (r Residue) WithProperty(p Property, v float64) (Residue, error) {
	if p < 0 || p >= numProperties {
		return r, &bioerr.Error{Kind: bioerr.MissingData, Op: "residue.WithProperty", Index: bioerr.NoIndex, Msg: "unknown property"}
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return r, bioerr.OutOfRange("residue.WithProperty", v, 0, 1)
	}
	r.props[p] = v
	r.set |= 1 << p
	return r, nil
}

// Codes serializes rs back to a code string.
func Codes(rs []Residue) string {
	b := make([]byte, len(rs))
	for i, r := range rs {
		b[i] = r.code
	}
	return string(b)
}
