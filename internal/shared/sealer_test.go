package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	s := NewSealer("secret")
	sealed, err := s.Seal("QpwL5tke4Pnpja7X4")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "QpwL5tke4Pnpja7X4")

	other, err := s.Seal("QpwL5tke4Pnpja7X4")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, other, "nonce must differ per seal")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "QpwL5tke4Pnpja7X4", plain)
}

func TestSealerRejectsForeignKeyAndGarbage(t *testing.T) {
	sealed, err := NewSealer("secret").Seal("tok")
	require.NoError(t, err)

	_, err = NewSealer("another").Open(sealed)
	assert.ErrorIs(t, err, ErrSealedValueInvalid)

	_, err = NewSealer("secret").Open("%%%")
	assert.ErrorIs(t, err, ErrSealedValueInvalid)

	_, err = NewSealer("secret").Open("c2hvcnQ")
	assert.ErrorIs(t, err, ErrSealedValueInvalid)
}
