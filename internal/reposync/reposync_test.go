package reposync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitForFlockRoundTrip(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lock, err := WaitForFlock(ctx, dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, lockFilename))

	require.NoError(t, lock.Release())
}

func TestWaitForFlockBlocksConcurrentHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := WaitForFlock(context.Background(), dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = WaitForFlock(ctx, dir)
	require.Error(t, err)

	require.NoError(t, first.Release())
}

func TestStageFileOutsideGitRepoIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), []byte("x"), 0o644))

	err := StageFile(context.Background(), dir, "x")
	require.NoError(t, err)
}

func TestStageFileInsideGitRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	require.NoError(t, exec.Command("git", "-C", dir, "init").Run())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), []byte("x"), 0o644))

	require.NoError(t, StageFile(context.Background(), dir, "x"))
}
