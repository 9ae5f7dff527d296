package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGateLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ok, err := h.gate.Configured(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, h.gate.Verify(ctx, "anything"), ErrGateNotConfigured)

	require.ErrorIs(t, h.gate.Setup(ctx, "abc"), ErrPassphraseTooShort)
	require.NoError(t, h.gate.Setup(ctx, "חפר1"))
	require.ErrorIs(t, h.gate.Setup(ctx, "another"), ErrGateConfigured)

	require.NoError(t, h.gate.Verify(ctx, "חפר1"))
	require.ErrorIs(t, h.gate.Verify(ctx, "wrong"), ErrWrongPassphrase)

	require.ErrorIs(t, h.gate.Change(ctx, "wrong", "newpass"), ErrWrongPassphrase)
	require.NoError(t, h.gate.Change(ctx, "חפר1", "newpass"))
	require.NoError(t, h.gate.Verify(ctx, "newpass"))

	// A fresh gate reads the stored hash.
	reopened := NewGate(h.settings, bcrypt.MinCost)
	ok, err = reopened.Configured(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, reopened.Verify(ctx, "newpass"))
}
