package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"jbio/internal/align"
	"jbio/internal/bioerr"
	"jbio/internal/metrics"
	"jbio/internal/registry"
	"jbio/internal/residue"
	"jbio/internal/source"
	"jbio/internal/store"
	"jbio/internal/validate"
)

// server exposes the registry over JSON. Writes go through the registry and
// are then snapshotted to the store.
type server struct {
	reg     *registry.Registry
	store   *store.Store
	val     *validate.Validator
	engine  *align.Engine
	metrics *metrics.Metrics
	logger  *log.Logger

	// persistMu serializes store writes. Each write copies the registry's
	// current state, so the last writer always leaves the latest revision.
	persistMu sync.Mutex
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/proteins", s.listProteins)
	mux.HandleFunc("GET /api/proteins/{acc}", s.getProtein)
	mux.HandleFunc("POST /api/proteins", s.commitChain)
	mux.HandleFunc("DELETE /api/proteins/{acc}", s.deleteProtein)
	mux.HandleFunc("POST /api/validate", s.validateChain)
	mux.HandleFunc("POST /api/align", s.alignChain)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return loggingMiddleware(s.logger, mux)
}

// statusResponseWriter captures status and bytes written for logging
type statusResponseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// loggingMiddleware logs each request with method, path, status, size and duration
func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w}
		next.ServeHTTP(srw, r)
		if srw.status == 0 {
			srw.status = http.StatusOK
		}
		logger.Info("request", "remote", r.RemoteAddr, "method", r.Method, "uri", r.URL.RequestURI(),
			"status", srw.status, "bytes", srw.written, "duration", time.Since(start), "agent", r.UserAgent())
	})
}

type chainJSON struct {
	ID          string     `json:"id"`
	Codes       string     `json:"codes"`
	Flexibility []*float64 `json:"flexibility,omitempty"`
}

type proteinJSON struct {
	Accession string      `json:"accession"`
	Revision  string      `json:"revision"`
	Chains    []chainJSON `json:"chains"`
}

type chainRequest struct {
	Accession string `json:"accession"`
	Chain     string `json:"chain"`
	Sequence  string `json:"sequence"`
}

type conflictJSON struct {
	Protein  string `json:"protein"`
	Chain    string `json:"chain"`
	Index    int    `json:"index"`
	Expected string `json:"expected"`
	Found    string `json:"found"`
}

type errorJSON struct {
	Error    string        `json:"error"`
	Kind     string        `json:"kind"`
	Conflict *conflictJSON `json:"conflict,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch bioerr.KindOf(err) {
	case bioerr.UnrecognizedProtein:
		return http.StatusNotFound
	case bioerr.MissingData:
		return http.StatusBadRequest
	case bioerr.InconsistentData, bioerr.LengthMismatch, bioerr.DuplicateChain:
		return http.StatusConflict
	case bioerr.UnknownCode, bioerr.ValueOutOfRange, bioerr.ResidueIndexOutOfBounds, bioerr.ResidueAlignment:
		return http.StatusUnprocessableEntity
	case bioerr.DataRetrieval:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	body := errorJSON{Error: err.Error(), Kind: bioerr.KindOf(err).String()}
	if c, ok := validate.Conflict(err); ok {
		body.Conflict = &conflictJSON{
			Protein: c.Protein, Chain: string(c.Chain), Index: c.Index,
			Expected: string(c.Expected), Found: string(c.Found),
		}
	}
	writeJSON(w, statusFor(err), body)
}

func (s *server) proteinView(acc string) (proteinJSON, error) {
	p, rev, err := s.reg.Snapshot(acc)
	if err != nil {
		return proteinJSON{}, err
	}
	out := proteinJSON{Accession: p.Accession(), Revision: rev}
	for _, c := range p.AllChains() {
		cj := chainJSON{ID: string(c.ID()), Codes: c.Codes()}
		for i, r := range c.Residues() {
			if v, ok := r.Property(residue.Flexibility); ok {
				if cj.Flexibility == nil {
					cj.Flexibility = make([]*float64, c.Len())
				}
				v := v
				cj.Flexibility[i] = &v
			}
		}
		out.Chains = append(out.Chains, cj)
	}
	return out, nil
}

func (s *server) listProteins(w http.ResponseWriter, r *http.Request) {
	out := make([]proteinJSON, 0, s.reg.Len())
	for _, acc := range s.reg.Accessions() {
		p, err := s.proteinView(acc)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getProtein(w http.ResponseWriter, r *http.Request) {
	p, err := s.proteinView(r.PathValue("acc"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func decodeChain(r *http.Request) (chainRequest, error) {
	var req chainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, &bioerr.Error{Kind: bioerr.MissingData, Op: "decode", Index: bioerr.NoIndex, Msg: err.Error()}
	}
	req.Sequence = strings.TrimSpace(req.Sequence)
	if strings.TrimSpace(req.Accession) == "" || len(req.Chain) != 1 {
		return req, &bioerr.Error{Kind: bioerr.MissingData, Op: "decode", Index: bioerr.NoIndex, Msg: "accession and a one-character chain are required"}
	}
	return req, nil
}

func (s *server) commitChain(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChain(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.reg.Commit(source.Record{Accession: req.Accession, Chain: req.Chain[0], Sequence: req.Sequence, Origin: "api"})
	if err != nil {
		writeError(w, err)
		return
	}
	if c.Outcome != registry.Unchanged {
		if err := s.persist(r.Context(), req.Accession); err != nil {
			s.logger.Error("failed to persist commit", "accession", req.Accession, "err", err)
			writeError(w, err)
			return
		}
	}
	status := http.StatusOK
	if c.Outcome == registry.Created || c.Outcome == registry.Extended {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{
		"accession": c.Accession,
		"chain":     string(c.Chain),
		"outcome":   c.Outcome.String(),
		"revision":  c.Revision,
	})
}

// persist writes the registry's current aggregate for acc to the store. A
// protein removed in the meantime is deleted from the store instead.
func (s *server) persist(ctx context.Context, acc string) error {
	if s.store == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	p, rev, err := s.reg.Snapshot(acc)
	if bioerr.Is(err, bioerr.UnrecognizedProtein) {
		_, err = s.store.Delete(ctx, acc)
		return err
	}
	if err != nil {
		return err
	}
	return s.store.Save(ctx, p, rev)
}

func (s *server) deleteProtein(w http.ResponseWriter, r *http.Request) {
	acc := r.PathValue("acc")
	if !s.reg.Remove(acc) {
		writeError(w, &bioerr.Error{Kind: bioerr.UnrecognizedProtein, Op: "delete", Protein: acc, Index: bioerr.NoIndex})
		return
	}
	if err := s.persist(r.Context(), acc); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) validateChain(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChain(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.reg.Lookup(req.Accession)
	if err == nil {
		err = s.val.Validate(p, req.Chain[0], strings.ToUpper(req.Sequence))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consistent": true})
}

type alignJSON struct {
	Mapping    []int   `json:"mapping"`
	Score      int     `json:"score"`
	Identity   float64 `json:"identity"`
	AlignedA   string  `json:"aligned_a"`
	AlignedB   string  `json:"aligned_b"`
	Reconciled bool    `json:"reconciled"`
	Reason     string  `json:"reason,omitempty"`
}

func (s *server) alignChain(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChain(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.reg.Lookup(req.Accession)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := p.Chain(req.Chain[0])
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engine.Reconcile(c, strings.ToUpper(req.Sequence))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Reconciled {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, alignJSON{
		Mapping: res.Mapping, Score: res.Score, Identity: res.Identity,
		AlignedA: res.AlignedA, AlignedB: res.AlignedB,
		Reconciled: res.Reconciled, Reason: res.Reason,
	})
}
