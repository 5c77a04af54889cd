package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOutputDirCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	lock, err := lockOutputDir(context.Background(), dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	require.NoError(t, lock.Unlock())
}

func TestLockOutputDirWaitsForHolder(t *testing.T) {
	dir := t.TempDir()
	first, err := lockOutputDir(context.Background(), dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = lockOutputDir(ctx, dir)
	require.Error(t, err, "second writer must wait for the first")

	require.NoError(t, first.Unlock())
	second, err := lockOutputDir(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, second.Unlock())
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.md")
	require.NoError(t, writeFileAtomic(path, []byte("one")))
	require.NoError(t, writeFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
