package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAndOpen(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("reports/roster.csv", []byte("id,status\n"))
	require.NoError(t, err)
	require.Equal(t, "reports/roster.csv", rel)

	file, err := store.Open(rel)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	buf := make([]byte, 16)
	n, _ := file.Read(buf)
	require.Equal(t, "id,status\n", string(buf[:n]))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.csv", []byte("x"))
	require.Error(t, err)

	_, err = store.Open("/etc/hosts")
	require.Error(t, err)

	require.Error(t, store.Delete("../../outside.csv"))
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("reports/old.csv", []byte("x"))
	require.NoError(t, err)
	_, err = store.Save("reports/fresh.csv", []byte("y"))
	require.NoError(t, err)

	aged := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path("reports/old.csv"), aged, aged))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	require.Contains(t, deleted, "reports/old.csv")
	require.NotContains(t, deleted, "reports/fresh.csv")

	_, err = store.Open("reports/old.csv")
	require.Error(t, err)
}
