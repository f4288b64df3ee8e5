// Package ncbi talks to the NCBI BLAST URL API and turns the plain-text
// report into chain records.
package ncbi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"jbio/internal/bioerr"
	"jbio/internal/metrics"
)

// Config holds the BLAST endpoint and client behavior.
type Config struct {
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Program      string        `json:"program" yaml:"program"`
	Database     string        `json:"database" yaml:"database"`
	APIKey       string        `json:"api_key" yaml:"api_key"`
	CachePath    string        `json:"cache_path" yaml:"cache_path"`
	CacheTTL     time.Duration `json:"-" yaml:"-"`
	QPS          float64       `json:"qps" yaml:"qps"`
	PollInterval time.Duration `json:"-" yaml:"-"`
	MaxPolls     int           `json:"max_polls" yaml:"max_polls"`
	Timeout      time.Duration `json:"-" yaml:"-"`
	UserAgent    string        `json:"user_agent" yaml:"user_agent"`
}

// DefaultConfig targets blastp against the PDB protein database. NCBI asks
// for no more than one poll per minute per RID; the default is gentler for
// short queries and still bounded by MaxPolls.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://blast.ncbi.nlm.nih.gov/Blast.cgi",
		Program:      "blastp",
		Database:     "pdb",
		CacheTTL:     7 * 24 * time.Hour,
		QPS:          3,
		PollInterval: 15 * time.Second,
		MaxPolls:     40,
		Timeout:      30 * time.Second,
		UserAgent:    "jbio/1.0",
	}
}

// Client runs BLAST searches. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *cache
	logger  *log.Logger
	metrics *metrics.Metrics
	sleep   func(context.Context, time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client; tests use it to inject a fake
// transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request timings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client. Zero-valued fields of cfg fall back to
// DefaultConfig.
func NewClient(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Program == "" {
		cfg.Program = def.Program
	}
	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.QPS <= 0 {
		cfg.QPS = def.QPS
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = def.MaxPolls
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
		cache:   newCache(cfg.CachePath, cfg.CacheTTL),
		logger:  log.New(io.Discard),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	ridRe    = regexp.MustCompile(`(?m)^\s*RID = (\S+)`)
	rtoeRe   = regexp.MustCompile(`(?m)^\s*RTOE = (\d+)`)
	statusRe = regexp.MustCompile(`(?m)^\s*Status=(\w+)`)
)

// Search submits sequence and waits for the plain-text report. Results are
// cached per (program, database, sequence) for the configured TTL.
func (c *Client) Search(ctx context.Context, sequence string) (string, error) {
	const op = "ncbi.Search"
	sequence = strings.ToUpper(strings.TrimSpace(sequence))
	if sequence == "" {
		return "", &bioerr.Error{Kind: bioerr.MissingData, Op: op, Index: bioerr.NoIndex, Msg: "empty query sequence"}
	}
	key := c.cfg.Program + "|" + c.cfg.Database + "|" + sequence
	if report, ok := c.cache.get(key); ok {
		c.logger.Debug("blast cache hit", "length", len(sequence))
		return report, nil
	}

	start := time.Now()
	report, err := c.search(ctx, sequence)
	c.metrics.ObserveFetch("ncbi", time.Since(start).Seconds(), err)
	if err != nil {
		return "", err
	}
	c.cache.set(key, report)
	return report, nil
}

func (c *Client) search(ctx context.Context, sequence string) (string, error) {
	const op = "ncbi.Search"
	put, err := c.get(ctx, url.Values{
		"CMD":      {"Put"},
		"PROGRAM":  {c.cfg.Program},
		"DATABASE": {c.cfg.Database},
		"QUERY":    {sequence},
	})
	if err != nil {
		return "", err
	}
	m := ridRe.FindStringSubmatch(put)
	if m == nil {
		return "", bioerr.Retrievalf(op, "no RID in submission response")
	}
	rid := m[1]
	wait := c.cfg.PollInterval
	if t := rtoeRe.FindStringSubmatch(put); t != nil {
		if secs, err := strconv.Atoi(t[1]); err == nil && time.Duration(secs)*time.Second < wait {
			wait = time.Duration(secs) * time.Second
		}
	}
	c.logger.Info("blast search submitted", "rid", rid, "length", len(sequence))

	for poll := 0; poll < c.cfg.MaxPolls; poll++ {
		if err := c.sleep(ctx, wait); err != nil {
			return "", bioerr.Retrieval(op, err)
		}
		wait = c.cfg.PollInterval
		info, err := c.get(ctx, url.Values{"CMD": {"Get"}, "FORMAT_OBJECT": {"SearchInfo"}, "RID": {rid}})
		if err != nil {
			return "", err
		}
		s := statusRe.FindStringSubmatch(info)
		if s == nil {
			continue
		}
		switch s[1] {
		case "WAITING":
			c.logger.Debug("blast search waiting", "rid", rid, "poll", poll+1)
			continue
		case "READY":
			return c.get(ctx, url.Values{"CMD": {"Get"}, "FORMAT_TYPE": {"Text"}, "RID": {rid}})
		default:
			return "", bioerr.Retrievalf(op, "search %s ended with status %s", rid, s[1])
		}
	}
	return "", bioerr.Retrievalf(op, "search %s not ready after %d polls", rid, c.cfg.MaxPolls)
}

// get issues one GET, retrying 429 and transport errors up to three times.
// A Retry-After header on 429 sets the wait.
func (c *Client) get(ctx context.Context, params url.Values) (string, error) {
	const op = "ncbi.get"
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	u := c.cfg.BaseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", bioerr.Retrieval(op, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", bioerr.Retrieval(op, err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if serr := c.sleep(ctx, time.Duration(attempt*300)*time.Millisecond); serr != nil {
				return "", bioerr.Retrieval(op, serr)
			}
			continue
		}
		body, rerr := io.ReadAll(resp.Body)
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
			if rerr != nil {
				return "", bioerr.Retrieval(op, rerr)
			}
			return string(body), nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("blast returned 429")
			wait := time.Duration(attempt*500) * time.Millisecond
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			c.logger.Warn("blast rate limited", "attempt", attempt, "wait", wait)
			if serr := c.sleep(ctx, wait); serr != nil {
				return "", bioerr.Retrieval(op, serr)
			}
		default:
			return "", bioerr.Retrievalf(op, "blast returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
	}
	return "", bioerr.Retrieval(op, lastErr)
}

// Flush writes the cache file.
func (c *Client) Flush() error {
	return c.cache.save()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
