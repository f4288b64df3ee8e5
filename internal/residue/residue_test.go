package residue

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jbio/internal/bioerr"
)

func TestResolveEveryByte(t *testing.T) {
	alphabet := Alphabet()
	for c := 0; c < 256; c++ {
		b := byte(c)
		r, err := Resolve(b)
		upper := strings.ToUpper(string(b))
		inAlphabet := len(upper) == 1 && strings.Contains(alphabet, upper)
		if inAlphabet {
			require.NoError(t, err, "code %q", b)
			assert.Equal(t, upper[0], r.Code())
			continue
		}
		require.Error(t, err, "code %q", b)
		assert.True(t, bioerr.Is(err, bioerr.UnknownCode))
		e, _ := bioerr.As(err)
		assert.Equal(t, b, e.Found)
	}
}

func TestResolveRejectsGapAndStop(t *testing.T) {
	for _, c := range []byte{'-', '*', 'O', 'U', '1', ' '} {
		_, err := Resolve(c)
		assert.True(t, bioerr.Is(err, bioerr.UnknownCode), "code %q", c)
		assert.False(t, IsValid(c))
	}
}

func TestResolveStringReportsIndex(t *testing.T) {
	rs, err := ResolveString("acd")
	require.NoError(t, err)
	assert.Equal(t, "ACD", Codes(rs))

	_, err = ResolveString("AC-D")
	require.Error(t, err)
	e, ok := bioerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bioerr.UnknownCode, e.Kind)
	assert.Equal(t, 2, e.Index)
	assert.Equal(t, byte('-'), e.Found)
}

func TestWithPropertyBounds(t *testing.T) {
	r, err := Resolve('A')
	require.NoError(t, err)

	for _, v := range []float64{0, 1, 0.5} {
		got, err := r.WithProperty(Disorder, v)
		require.NoError(t, err, "value %v", v)
		val, ok := got.Property(Disorder)
		assert.True(t, ok)
		assert.Equal(t, v, val)
	}

	for _, v := range []float64{1.0001, -0.0001, math.NaN(), math.Inf(1)} {
		got, err := r.WithProperty(Flexibility, v)
		require.Error(t, err, "value %v", v)
		assert.True(t, bioerr.Is(err, bioerr.ValueOutOfRange))
		_, ok := got.Property(Flexibility)
		assert.False(t, ok, "rejected value must not be stored")
	}
}

func TestPropertyUnset(t *testing.T) {
	r, err := Resolve('W')
	require.NoError(t, err)
	_, ok := r.Property(Confidence)
	assert.False(t, ok)

	_, err = r.WithProperty(Property(42), 0.5)
	assert.True(t, bioerr.Is(err, bioerr.MissingData))
}

func TestParseProperty(t *testing.T) {
	for _, p := range Properties() {
		got, ok := ParseProperty(p.String())
		assert.True(t, ok)
		assert.Equal(t, p, got)
	}
	_, ok := ParseProperty("hydrophobicity")
	assert.False(t, ok)
}
