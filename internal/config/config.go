package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"jbio/internal/align"
	"jbio/internal/culling"
	"jbio/internal/ncbi"
)

type Config struct {
	InputFasta   string `json:"input_fasta" yaml:"input_fasta"`
	DatabasePath string `json:"database_path" yaml:"database_path"`
	WebAddr      string `json:"web_addr" yaml:"web_addr"`
	LogFile      string `json:"log_file" yaml:"log_file"`
	LogLevel     string `json:"log_level" yaml:"log_level"`

	BlastURL         string  `json:"blast_url" yaml:"blast_url"`
	BlastProgram     string  `json:"blast_program" yaml:"blast_program"`
	BlastDatabase    string  `json:"blast_database" yaml:"blast_database"`
	BlastQPS         float64 `json:"blast_qps" yaml:"blast_qps"`
	BlastPollSecs    int64   `json:"blast_poll_seconds" yaml:"blast_poll_seconds"`
	BlastMaxPolls    int     `json:"blast_max_polls" yaml:"blast_max_polls"`
	NcbiApiKey       string  `json:"ncbi_api_key" yaml:"ncbi_api_key"`
	NcbiCachePath    string  `json:"ncbi_cache_path" yaml:"ncbi_cache_path"`
	NcbiCacheTTLSecs int64   `json:"ncbi_cache_ttl_seconds" yaml:"ncbi_cache_ttl_seconds"`

	PdbflexURL         string `json:"pdbflex_url" yaml:"pdbflex_url"`
	PdbflexTimeoutSecs int64  `json:"pdbflex_timeout_seconds" yaml:"pdbflex_timeout_seconds"`

	CullInterpreter string   `json:"cull_interpreter" yaml:"cull_interpreter"`
	CullScript      string   `json:"cull_script" yaml:"cull_script"`
	CullArgs        []string `json:"cull_args" yaml:"cull_args"`
	CullTimeoutSecs int64    `json:"cull_timeout_seconds" yaml:"cull_timeout_seconds"`

	AlignMode     string  `json:"align_mode" yaml:"align_mode"`
	MatchScore    int     `json:"match_score" yaml:"match_score"`
	MismatchScore int     `json:"mismatch_score" yaml:"mismatch_score"`
	GapScore      int     `json:"gap_score" yaml:"gap_score"`
	MinIdentity   float64 `json:"min_identity" yaml:"min_identity"`
	MinAligned    int     `json:"min_aligned" yaml:"min_aligned"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	ac := align.DefaultConfig()
	bc := ncbi.DefaultConfig()
	return &Config{
		DatabasePath:       "jbio.db",
		WebAddr:            ":8080",
		LogLevel:           "info",
		BlastURL:           bc.BaseURL,
		BlastProgram:       bc.Program,
		BlastDatabase:      bc.Database,
		BlastQPS:           bc.QPS,
		BlastPollSecs:      int64(bc.PollInterval.Seconds()),
		BlastMaxPolls:      bc.MaxPolls,
		NcbiCacheTTLSecs:   int64(bc.CacheTTL.Seconds()),
		PdbflexTimeoutSecs: 30,
		CullInterpreter:    "perl",
		CullTimeoutSecs:    600,
		AlignMode:          ac.Mode.String(),
		MatchScore:         ac.Scoring.Match,
		MismatchScore:      ac.Scoring.Mismatch,
		GapScore:           ac.Scoring.Gap,
		MinIdentity:        ac.MinIdentity,
		MinAligned:         ac.MinAligned,
	}
}

// LoadConfig loads a JSON or YAML (.yaml/.yml) config from path. If path is
// empty, looks for ./config.json. A missing file yields the defaults; keys
// absent from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		// not fatal: return defaults
		return c, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Align builds and validates the alignment configuration.
func (c *Config) Align() (align.Config, error) {
	mode, err := align.ParseMode(c.AlignMode)
	if err != nil {
		return align.Config{}, err
	}
	ac := align.Config{
		Scoring:     align.Scoring{Match: c.MatchScore, Mismatch: c.MismatchScore, Gap: c.GapScore},
		Mode:        mode,
		MinIdentity: c.MinIdentity,
		MinAligned:  c.MinAligned,
	}
	return ac, ac.Validate()
}

// Blast converts the BLAST fields. A relative cache path is made absolute.
func (c *Config) Blast() ncbi.Config {
	cache := c.NcbiCachePath
	if cache != "" {
		if abs, err := filepath.Abs(cache); err == nil {
			cache = abs
		}
	}
	return ncbi.Config{
		BaseURL:      c.BlastURL,
		Program:      c.BlastProgram,
		Database:     c.BlastDatabase,
		APIKey:       c.NcbiApiKey,
		CachePath:    cache,
		CacheTTL:     time.Duration(c.NcbiCacheTTLSecs) * time.Second,
		QPS:          c.BlastQPS,
		PollInterval: time.Duration(c.BlastPollSecs) * time.Second,
		MaxPolls:     c.BlastMaxPolls,
	}
}

// Culling returns a runner for the configured script; logger and metrics
// are left for the caller.
func (c *Config) Culling() *culling.Runner {
	return &culling.Runner{
		Interpreter: c.CullInterpreter,
		Script:      c.CullScript,
		Args:        c.CullArgs,
		Timeout:     time.Duration(c.CullTimeoutSecs) * time.Second,
	}
}

// PdbflexTimeout is the PDBFlex request timeout.
func (c *Config) PdbflexTimeout() time.Duration {
	return time.Duration(c.PdbflexTimeoutSecs) * time.Second
}
