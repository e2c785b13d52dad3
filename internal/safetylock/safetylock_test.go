package safetylock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoschematic-sh/autoschematic/internal/errtypes"
)

func TestLockUnlockRoundTrip(t *testing.T) {
	dir := t.TempDir()

	locked, err := Locked(dir)
	require.NoError(t, err)
	require.False(t, locked)
	require.NoError(t, Check(dir))

	require.NoError(t, Lock(dir, "maintenance window"))

	locked, err = Locked(dir)
	require.NoError(t, err)
	require.True(t, locked)
	require.ErrorIs(t, Check(dir), errtypes.ErrSafetyLocked)

	require.NoError(t, Unlock(dir))
	locked, err = Locked(dir)
	require.NoError(t, err)
	require.False(t, locked)
}

func TestUnlockWithoutLockIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Unlock(dir))
}
