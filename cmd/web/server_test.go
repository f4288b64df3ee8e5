package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jbio/internal/align"
	"jbio/internal/metrics"
	"jbio/internal/registry"
	"jbio/internal/store"
	"jbio/internal/validate"
)

func newTestServer(t *testing.T, withStore bool) (*server, http.Handler) {
	t.Helper()
	logger := log.New(io.Discard)
	m := metrics.New()
	val := validate.New(logger, m)
	engine, err := align.NewEngine(align.DefaultConfig(), logger, m)
	require.NoError(t, err)
	s := &server{reg: registry.New(val, logger, m), val: val, engine: engine, metrics: m, logger: logger}
	if withStore {
		st, err := store.Open(filepath.Join(t.TempDir(), "web.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		s.store = st
	}
	return s, s.routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestCommitGetAndList(t *testing.T) {
	s, h := newTestServer(t, true)

	rec := do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"ACDEFG"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var commit map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commit))
	assert.Equal(t, "created", commit["outcome"])
	assert.NotEmpty(t, commit["revision"])

	rec = do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"ACDEFG"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/proteins/1ABC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p proteinJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Len(t, p.Chains, 1)
	assert.Equal(t, "A", p.Chains[0].ID)
	assert.Equal(t, "ACDEFG", p.Chains[0].Codes)
	assert.Equal(t, commit["revision"], p.Revision)

	rec = do(t, h, http.MethodGet, "/api/proteins", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []proteinJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)

	// the commit was persisted
	summaries, err := s.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestCommitRejectsMalformedRequests(t *testing.T) {
	_, h := newTestServer(t, false)

	rec := do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"AB","sequence":"ACD"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/proteins", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"AC1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unknown residue code", body.Kind)
}

func TestCommitConflictIsRejected(t *testing.T) {
	_, h := newTestServer(t, false)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"ACDE"}`).Code)

	rec := do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"ACWE"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Conflict)
	assert.Equal(t, 2, body.Conflict.Index)
	assert.Equal(t, "D", body.Conflict.Expected)
	assert.Equal(t, "W", body.Conflict.Found)
}

func TestValidateEndpoint(t *testing.T) {
	_, h := newTestServer(t, false)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"ACDE"}`).Code)

	rec := do(t, h, http.MethodPost, "/api/validate", `{"accession":"1ABC","chain":"A","sequence":"acde"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"consistent":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/validate", `{"accession":"1ABC","chain":"A","sequence":"ACDK"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Conflict)
	assert.Equal(t, 3, body.Conflict.Index)
	assert.Equal(t, "A", body.Conflict.Chain)

	rec = do(t, h, http.MethodPost, "/api/validate", `{"accession":"1ABC","chain":"A","sequence":"ACD"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/validate", `{"accession":"9ZZZ","chain":"A","sequence":"ACDE"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlignEndpoint(t *testing.T) {
	_, h := newTestServer(t, false)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"ACDEFGHIKL"}`).Code)

	rec := do(t, h, http.MethodPost, "/api/align", `{"accession":"1ABC","chain":"A","sequence":"ACDEGHIKL"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res alignJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Reconciled)
	assert.Len(t, res.Mapping, 10)
	assert.Equal(t, -1, res.Mapping[4])

	rec = do(t, h, http.MethodPost, "/api/align", `{"accession":"1ABC","chain":"A","sequence":"WWWWWWWWWW"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Reconciled)
	assert.NotEmpty(t, res.Reason)

	rec = do(t, h, http.MethodPost, "/api/align", `{"accession":"1ABC","chain":"B","sequence":"ACD"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProtein(t *testing.T) {
	s, h := newTestServer(t, true)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"ACDE"}`).Code)

	rec := do(t, h, http.MethodDelete, "/api/proteins/1ABC", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.reg.Len())

	summaries, err := s.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries)

	rec = do(t, h, http.MethodDelete, "/api/proteins/1ABC", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, false)
	do(t, h, http.MethodPost, "/api/proteins", `{"accession":"1ABC","chain":"A","sequence":"ACDE"}`)
	do(t, h, http.MethodPost, "/api/validate", `{"accession":"1ABC","chain":"A","sequence":"ACDE"}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jbio_validate_total")
}

func TestConcurrentCommitsPersistLatestRevision(t *testing.T) {
	s, h := newTestServer(t, true)

	ids := "ABCDEFGH"
	codes := make(chan int, len(ids))
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			body := fmt.Sprintf(`{"accession":"1ABC","chain":"%c","sequence":"ACDE"}`, id)
			codes <- do(t, h, http.MethodPost, "/api/proteins", body).Code
		}(ids[i])
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		assert.Equal(t, http.StatusCreated, code)
	}

	ctx := context.Background()
	stored, err := s.store.Load(ctx, "1ABC")
	require.NoError(t, err)
	assert.Len(t, stored.ChainIDs(), len(ids))

	summaries, err := s.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, s.reg.Revision("1ABC"), summaries[0].Revision)
}
