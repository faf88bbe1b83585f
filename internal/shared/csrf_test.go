package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFEnsureIsStable(t *testing.T) {
	m := NewCSRFManager("csrf-secret")
	sess := &Session{ID: "s1"}

	first, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	second, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, m.VerifyToken(context.Background(), sess, first))
}

func TestCSRFRotateInvalidatesPrevious(t *testing.T) {
	m := NewCSRFManager("csrf-secret")
	sess := &Session{ID: "s1"}
	old, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	fresh, err := m.Rotate(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, old), ErrCSRFTokenMismatch)
	assert.NoError(t, m.VerifyToken(context.Background(), sess, fresh))
}

func TestCSRFMissingToken(t *testing.T) {
	m := NewCSRFManager("csrf-secret")
	assert.ErrorIs(t, m.VerifyToken(context.Background(), nil, "x"), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), &Session{ID: "s"}, "x"), ErrCSRFTokenMissing)

	_, err := m.EnsureToken(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSessionMissing)
}
