package pdbflex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jbio/internal/bioerr"
	"jbio/internal/chain"
	"jbio/internal/residue"
)

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rmsdProfile.php", r.URL.Path)
		assert.Equal(t, "1abc", r.URL.Query().Get("pdbID"))
		assert.Equal(t, "A", r.URL.Query().Get("chainID"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProfile(t *testing.T) {
	srv := newServer(t, http.StatusOK, "{\"profile\":[0.5,1.5,2.5]}\n")
	c := NewClient(srv.URL, time.Second, nil, nil)

	line, err := c.Profile(context.Background(), "1ABC", 'A')
	require.NoError(t, err)
	assert.Equal(t, `{"profile":[0.5,1.5,2.5]}`, line)
}

func TestProfileFailuresAreRetrieval(t *testing.T) {
	for name, srv := range map[string]*httptest.Server{
		"status": newServer(t, http.StatusServiceUnavailable, "down"),
		"empty":  newServer(t, http.StatusOK, "  \n"),
	} {
		c := NewClient(srv.URL, time.Second, nil, nil)
		_, err := c.Profile(context.Background(), "1ABC", 'A')
		assert.True(t, bioerr.Is(err, bioerr.DataRetrieval), "%s: %v", name, err)
	}

	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond, nil, nil)
	_, err := c.Profile(context.Background(), "1ABC", 'A')
	assert.True(t, bioerr.Is(err, bioerr.DataRetrieval))
}

func TestProfileHonorsCanceledContext(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("1 2 3"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Profile(ctx, "1ABC", 'A')
	assert.True(t, bioerr.Is(err, bioerr.DataRetrieval))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, hits)
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		line string
		want []float64
	}{
		{`{"profile":[0.5,1.5]}`, []float64{0.5, 1.5}},
		{`[1, 2, 3]`, []float64{1, 2, 3}},
		{"0.1, 0.2\t0.3 0.4", []float64{0.1, 0.2, 0.3, 0.4}},
	}
	for _, tt := range tests {
		got, err := ParseProfile(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}

	_, err := ParseProfile("1.0 abc")
	assert.True(t, bioerr.Is(err, bioerr.DataRetrieval))

	_, err = ParseProfile(`{"profile":[]}`)
	assert.True(t, bioerr.Is(err, bioerr.MissingData))

	_, err = ParseProfile("1.0 -0.5")
	e, ok := bioerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bioerr.ValueOutOfRange, e.Kind)
	assert.Equal(t, 1, e.Index)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, Normalize([]float64{2, 3, 4}))
	assert.Equal(t, []float64{0, 0}, Normalize([]float64{7, 7}))
	assert.Empty(t, Normalize(nil))
}

func TestAnnotate(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"profile":[1,3,2]}`)
	c := NewClient(srv.URL, time.Second, nil, nil)

	ch, err := chain.New('A', "ACD")
	require.NoError(t, err)
	got, err := c.Annotate(context.Background(), "1ABC", ch)
	require.NoError(t, err)

	want := []float64{0, 1, 0.5}
	for i, w := range want {
		r, err := got.Get(i)
		require.NoError(t, err)
		v, ok := r.Property(residue.Flexibility)
		assert.True(t, ok)
		assert.InDelta(t, w, v, 1e-9)
	}

	short, err := chain.New('A', "AC")
	require.NoError(t, err)
	_, err = c.Annotate(context.Background(), "1ABC", short)
	e, ok := bioerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bioerr.LengthMismatch, e.Kind)
	assert.Equal(t, "1ABC", e.Protein)
}
