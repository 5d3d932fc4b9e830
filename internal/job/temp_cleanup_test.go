package job

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTempCleanupRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "docqa-1234.pdf")
	fresh := filepath.Join(dir, "upload-5678.txt")
	other := filepath.Join(dir, "unrelated.txt")
	for _, file := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	}
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	j := NewTempCleanupJob(dir, 24*time.Hour)
	require.Equal(t, "temp_cleanup", j.Name())
	require.NoError(t, j.Run(context.Background()))

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	// fresh files and files without our prefixes stay put
	_, err = os.Stat(fresh)
	require.NoError(t, err)
	_, err = os.Stat(other)
	require.NoError(t, err)
}

func TestTempCleanupEmptyDir(t *testing.T) {
	j := NewTempCleanupJob("", time.Hour)
	require.NoError(t, j.Run(context.Background()))
}
