package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filelink.lock")

	l, err := Acquire(path)
	require.NoError(t, err)
	require.Equal(t, path, l.Path())
	require.FileExists(t, path)

	require.NoError(t, l.Release())
	require.NoFileExists(t, path)

	l2, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquireFailsWhileHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filelink.lock")

	l, err := Acquire(path)
	require.NoError(t, err)
	defer l.Release()

	_, err = Acquire(path)
	require.Error(t, err)
}

func TestAcquireRemovesStaleLockFromDeadProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filelink.lock")

	// A PID vanishingly unlikely to be alive.
	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0o644))

	_, err := Acquire(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stale lock detected")
	require.NoFileExists(t, path)

	l, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}
