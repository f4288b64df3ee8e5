// Package bioerr defines the single error type used across the protein core.
//
// Every failure carries a Kind discriminant plus whatever structured payload
// is relevant (protein, chain, index, residue codes, numeric value). Callers
// match on the Kind with KindOf or Is instead of on concrete error types.
package bioerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind int

const (
	// Unknown is returned by KindOf for errors that are not *Error.
	Unknown Kind = iota
	// UnknownCode is a residue code outside the recognized alphabet.
	UnknownCode
	// ValueOutOfRange is a numeric residue property outside its domain.
	ValueOutOfRange
	// ResidueIndexOutOfBounds is a chain access outside 0..len-1.
	ResidueIndexOutOfBounds
	// InconsistentData is a positional mismatch between a chain and external data.
	InconsistentData
	// LengthMismatch is an external sequence whose length differs from the chain.
	LengthMismatch
	// ResidueAlignment means two sequences cannot be lined up.
	ResidueAlignment
	// DataRetrieval is a failure inside an external adapter.
	DataRetrieval
	// UnrecognizedProtein is a lookup for an accession nobody registered.
	UnrecognizedProtein
	// MissingData is a lookup for an absent chain or a missing required field.
	MissingData
	// DuplicateChain is a chain identifier registered twice in one protein.
	DuplicateChain
)

func (k Kind) String() string {
	switch k {
	case UnknownCode:
		return "unknown residue code"
	case ValueOutOfRange:
		return "value out of range"
	case ResidueIndexOutOfBounds:
		return "residue index out of bounds"
	case InconsistentData:
		return "inconsistent data"
	case LengthMismatch:
		return "length mismatch"
	case ResidueAlignment:
		return "residue alignment"
	case DataRetrieval:
		return "data retrieval"
	case UnrecognizedProtein:
		return "unrecognized protein"
	case MissingData:
		return "missing data"
	case DuplicateChain:
		return "duplicate chain"
	default:
		return "unknown"
	}
}

// Direction tells which side of a chain's bounds an index fell off.
type Direction int

const (
	NoDirection Direction = iota
	TooSmall
	TooLarge
)

func (d Direction) String() string {
	switch d {
	case TooSmall:
		return "too small"
	case TooLarge:
		return "too large"
	default:
		return "none"
	}
}

// NoIndex marks an Error whose Index field is not meaningful.
const NoIndex = -1

// Error is the tagged error value. Fields that do not apply to a Kind are
// left at their zero value (Index at NoIndex).
type Error struct {
	Kind      Kind
	Op        string
	Protein   string
	Chain     byte
	Index     int
	Expected  byte
	Found     byte
	Direction Direction
	Value     float64
	Min       float64
	Max       float64
	Length    int
	Other     int
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	switch e.Kind {
	case UnknownCode:
		fmt.Fprintf(&b, " %q", e.Found)
		if e.Index != NoIndex {
			fmt.Fprintf(&b, " at index %d", e.Index)
		}
	case ValueOutOfRange:
		if e.Msg == "" {
			fmt.Fprintf(&b, " %g not in [%g,%g]", e.Value, e.Min, e.Max)
		} else {
			fmt.Fprintf(&b, " %g", e.Value)
		}
	case ResidueIndexOutOfBounds:
		fmt.Fprintf(&b, " (%s): index %d, length %d", e.Direction, e.Index, e.Length)
	case InconsistentData:
		fmt.Fprintf(&b, " at index %d: expected %c, found %c", e.Index, e.Expected, e.Found)
	case LengthMismatch:
		fmt.Fprintf(&b, ": chain has %d residues, external sequence has %d", e.Length, e.Other)
	}
	if e.Protein != "" {
		fmt.Fprintf(&b, " [protein %s", e.Protein)
		if e.Chain != 0 {
			fmt.Fprintf(&b, " chain %c", e.Chain)
		}
		b.WriteString("]")
	} else if e.Chain != 0 {
		fmt.Fprintf(&b, " [chain %c]", e.Chain)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind with Index set to NoIndex.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op, Index: NoIndex}
}

// Retrieval wraps an adapter failure.
func Retrieval(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: DataRetrieval, Op: op, Index: NoIndex, Err: err}
}

// Retrievalf builds an adapter failure from a message.
func Retrievalf(op, format string, args ...any) error {
	return &Error{Kind: DataRetrieval, Op: op, Index: NoIndex, Msg: fmt.Sprintf(format, args...)}
}

// OutOfRange reports v outside [lo,hi].
func OutOfRange(op string, v, lo, hi float64) error {
	return &Error{Kind: ValueOutOfRange, Op: op, Index: NoIndex, Value: v, Min: lo, Max: hi}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries an Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsIntegrity reports whether err is a data-integrity violation: a condition
// the core never recovers from silently.
func IsIntegrity(err error) bool {
	switch KindOf(err) {
	case UnknownCode, ValueOutOfRange, ResidueIndexOutOfBounds,
		InconsistentData, LengthMismatch, DuplicateChain:
		return true
	}
	return false
}
