package align

import (
	"fmt"

	"jbio/internal/bioerr"
)

// Mode selects global (Needleman-Wunsch) or local (Smith-Waterman) alignment.
type Mode int

const (
	Global Mode = iota
	Local
)

func (m Mode) String() string {
	switch m {
	case Global:
		return "global"
	case Local:
		return "local"
	default:
		return "unknown"
	}
}

// ParseMode accepts "global" or "local"; the empty string means global.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "global":
		return Global, nil
	case "local":
		return Local, nil
	}
	return Global, fmt.Errorf("unknown alignment mode %q", s)
}

// Scoring is a linear-gap match/mismatch scheme.
type Scoring struct {
	Match    int `json:"match" yaml:"match"`
	Mismatch int `json:"mismatch" yaml:"mismatch"`
	Gap      int `json:"gap" yaml:"gap"`
}

// NewScoring validates the scheme: match must be positive, mismatch and gap
// must not be.
func NewScoring(match, mismatch, gap int) (Scoring, error) {
	s := Scoring{Match: match, Mismatch: mismatch, Gap: gap}
	return s, s.Validate()
}

// DefaultScoring is +1 match, -1 mismatch, -2 per gap.
func DefaultScoring() Scoring {
	return Scoring{Match: 1, Mismatch: -1, Gap: -2}
}

func (s Scoring) Validate() error {
	switch {
	case s.Match <= 0:
		return &bioerr.Error{Kind: bioerr.ValueOutOfRange, Op: "align.Scoring", Index: bioerr.NoIndex, Value: float64(s.Match), Msg: "match must be > 0"}
	case s.Mismatch > 0:
		return &bioerr.Error{Kind: bioerr.ValueOutOfRange, Op: "align.Scoring", Index: bioerr.NoIndex, Value: float64(s.Mismatch), Msg: "mismatch must be <= 0"}
	case s.Gap > 0:
		return &bioerr.Error{Kind: bioerr.ValueOutOfRange, Op: "align.Scoring", Index: bioerr.NoIndex, Value: float64(s.Gap), Msg: "gap must be <= 0"}
	}
	return nil
}

func (s Scoring) score(a, b byte) int {
	if a == b {
		return s.Match
	}
	return s.Mismatch
}

func (s Scoring) String() string {
	return fmt.Sprintf("match=%d mismatch=%d gap=%d", s.Match, s.Mismatch, s.Gap)
}

// Config holds the engine parameters. An alignment is reconciled when its
// identity reaches MinIdentity and it has at least MinAligned matches.
type Config struct {
	Scoring     Scoring `json:"scoring" yaml:"scoring"`
	Mode        Mode    `json:"-" yaml:"-"`
	MinIdentity float64 `json:"min_identity" yaml:"min_identity"`
	MinAligned  int     `json:"min_aligned" yaml:"min_aligned"`
}

// DefaultConfig is a global alignment requiring 25% identity.
func DefaultConfig() Config {
	return Config{
		Scoring:     DefaultScoring(),
		Mode:        Global,
		MinIdentity: 0.25,
		MinAligned:  1,
	}
}

func (c Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if c.MinIdentity < 0 || c.MinIdentity > 1 {
		return bioerr.OutOfRange("align.Config", c.MinIdentity, 0, 1)
	}
	if c.MinAligned < 0 {
		return &bioerr.Error{Kind: bioerr.ValueOutOfRange, Op: "align.Config", Index: bioerr.NoIndex, Value: float64(c.MinAligned), Msg: "min aligned must be >= 0"}
	}
	if c.Mode != Global && c.Mode != Local {
		return fmt.Errorf("align.Config: unknown mode %d", c.Mode)
	}
	return nil
}
