// Package pdbflex fetches per-residue RMSD flexibility profiles from PDBFlex
// and turns them into Flexibility properties on a chain.
package pdbflex

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"jbio/internal/bioerr"
	"jbio/internal/chain"
	"jbio/internal/metrics"
	"jbio/internal/residue"
)

// DefaultBaseURL is the public PDBFlex API root.
const DefaultBaseURL = "https://pdbflex.org/php/api"

// Client queries the rmsdProfile endpoint.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// NewClient returns a client with the given timeout. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, logger *log.Logger, m *metrics.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
		Metrics: m,
	}
}

// Profile returns the raw profile line for one chain. Every failure,
// including an empty body, is DataRetrieval.
func (c *Client) Profile(ctx context.Context, accession string, chainID byte) (string, error) {
	start := time.Now()
	line, err := c.profile(ctx, accession, chainID)
	c.Metrics.ObserveFetch("pdbflex", time.Since(start).Seconds(), err)
	return line, err
}

func (c *Client) profile(ctx context.Context, accession string, chainID byte) (string, error) {
	const op = "pdbflex.Profile"
	q := url.Values{"pdbID": {strings.ToLower(accession)}, "chainID": {string(chainID)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/rmsdProfile.php?"+q.Encode(), nil)
	if err != nil {
		return "", bioerr.Retrieval(op, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", bioerr.Retrieval(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", bioerr.Retrieval(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", bioerr.Retrievalf(op, "pdbflex returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	line := strings.TrimSpace(string(body))
	if line == "" {
		return "", bioerr.Retrievalf(op, "empty profile for %s:%c", accession, chainID)
	}
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	c.Logger.Debug("pdbflex profile fetched", "protein", accession, "chain", string(chainID), "bytes", len(line))
	return line, nil
}

type profileResponse struct {
	Profile []float64 `json:"profile"`
}

// ParseProfile reads a profile line. It accepts the API's JSON object
// ({"profile":[...]}), a bare JSON array, or numbers separated by commas or
// whitespace. Negative or non-finite values are ValueOutOfRange.
func ParseProfile(line string) ([]float64, error) {
	const op = "pdbflex.ParseProfile"
	line = strings.TrimSpace(line)
	var values []float64
	switch {
	case strings.HasPrefix(line, "{"):
		var resp profileResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return nil, bioerr.Retrieval(op, err)
		}
		values = resp.Profile
	case strings.HasPrefix(line, "["):
		if err := json.Unmarshal([]byte(line), &values); err != nil {
			return nil, bioerr.Retrieval(op, err)
		}
	default:
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, bioerr.Retrieval(op, err)
			}
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, &bioerr.Error{Kind: bioerr.MissingData, Op: op, Index: bioerr.NoIndex, Msg: "empty profile"}
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			e := bioerr.OutOfRange(op, v, 0, math.Inf(1)).(*bioerr.Error)
			e.Index = i
			return nil, e
		}
	}
	return values, nil
}

// Normalize min-max scales values into [0,1]. A flat profile maps to all
// zeros.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// Annotate fetches the profile for c and returns a copy of c carrying the
// normalized values as Flexibility. A profile whose length differs from the
// chain is LengthMismatch.
func (c *Client) Annotate(ctx context.Context, accession string, ch *chain.Chain) (*chain.Chain, error) {
	line, err := c.Profile(ctx, accession, ch.ID())
	if err != nil {
		return nil, err
	}
	values, err := ParseProfile(line)
	if err != nil {
		return nil, err
	}
	out, err := ch.With(chain.WithProperties(residue.Flexibility, Normalize(values)))
	if e, ok := bioerr.As(err); ok {
		e.Protein = accession
	}
	return out, err
}
