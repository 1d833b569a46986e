package fetch

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sevigo/codesentry/internal/core"
)

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestArchiveFetcher_Fetch_HappyPath(t *testing.T) {
	archivePath := writeZip(t, map[string]string{
		"main.py":         "def f():\n    pass\n",
		"pkg/helper.py":   "x = 1\n",
	})
	f := NewArchiveFetcher(t.TempDir(), 0, nil)

	root, cleanup, err := f.Fetch(context.Background(), core.Repository{ArchivePath: archivePath})
	require.NoError(t, err)
	defer cleanup()

	content, err := os.ReadFile(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	require.Contains(t, string(content), "def f()")
}

func TestArchiveFetcher_Fetch_RejectsTraversal(t *testing.T) {
	archivePath := writeZip(t, map[string]string{
		"../outside.py": "evil = True\n",
	})
	f := NewArchiveFetcher(t.TempDir(), 0, nil)

	_, _, err := f.Fetch(context.Background(), core.Repository{ArchivePath: archivePath})
	require.ErrorIs(t, err, core.ErrArchiveUnsafe)
}

func TestArchiveFetcher_Fetch_RejectsOversize(t *testing.T) {
	archivePath := writeZip(t, map[string]string{
		"big.py": string(make([]byte, 1024)),
	})
	f := NewArchiveFetcher(t.TempDir(), 100, nil)

	_, _, err := f.Fetch(context.Background(), core.Repository{ArchivePath: archivePath})
	require.ErrorIs(t, err, core.ErrArchiveTooLarge)
}
