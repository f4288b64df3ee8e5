package bioerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := &Error{Kind: InconsistentData, Protein: "1ABC", Chain: 'A', Index: 1, Expected: 'C', Found: 'X'}
	wrapped := fmt.Errorf("reloading: %w", base)

	assert.Equal(t, InconsistentData, KindOf(wrapped))
	assert.True(t, Is(wrapped, InconsistentData))
	assert.False(t, Is(wrapped, LengthMismatch))
	assert.True(t, IsIntegrity(wrapped))

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, 1, e.Index)
	assert.Equal(t, byte('C'), e.Expected)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, Unknown))
	assert.False(t, IsIntegrity(nil))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "conflict",
			err:  &Error{Kind: InconsistentData, Op: "validate", Protein: "1ABC", Chain: 'A', Index: 1, Expected: 'C', Found: 'X'},
			want: "validate: inconsistent data at index 1: expected C, found X [protein 1ABC chain A]",
		},
		{
			name: "bounds",
			err:  &Error{Kind: ResidueIndexOutOfBounds, Chain: 'B', Index: -1, Length: 3, Direction: TooSmall},
			want: "residue index out of bounds (too small): index -1, length 3 [chain B]",
		},
		{
			name: "range",
			err:  OutOfRange("residue.WithProperty", 1.5, 0, 1),
			want: "residue.WithProperty: value out of range 1.5 not in [0,1]",
		},
		{
			name: "retrieval",
			err:  Retrieval("ncbi.Search", errors.New("connection refused")),
			want: "ncbi.Search: data retrieval: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestRetrievalUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := Retrieval("pdbflex.Profile", cause)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Retrieval("noop", nil))
	assert.False(t, IsIntegrity(err))
}
