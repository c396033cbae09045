package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walkFiles(t *testing.T, dir Directory) []string {
	t.Helper()
	var files []string
	require.NoError(t, dir.Walk(func(f File, err error) error {
		if err != nil {
			return err
		}
		if !f.Info().IsDir() {
			files = append(files, f.RelativePath())
		}
		return nil
	}))
	return files
}

func TestOSFileSystem_WriteAndWalk(t *testing.T) {
	root := t.TempDir()
	p := NewOSFileSystem()

	n, err := p.WriteFile(filepath.Join(root, "yellow", "2024", "b.csv"), strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	_, err = p.WriteFile(filepath.Join(root, "a.csv"), strings.NewReader("x"))
	require.NoError(t, err)

	dir, err := p.Open(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "yellow/2024/b.csv"}, walkFiles(t, dir))

	entries, err := os.ReadDir(filepath.Join(root, "yellow", "2024"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestOSFileSystem_OpenErrors(t *testing.T) {
	p := NewOSFileSystem()
	_, err := p.Open(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	file := filepath.Join(t.TempDir(), "f.csv")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = p.Open(file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()
	m.AddFile("/data/green/2021/z.csv", []byte("z"))
	_, err := m.WriteFile("/data/a.parquet", strings.NewReader("pq"))
	require.NoError(t, err)

	dir, err := m.Open("/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.parquet", "green/2021/z.csv"}, walkFiles(t, dir))

	info, err := m.Stat("/data/a.parquet")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())
	assert.False(t, info.IsDir())

	info, err = m.Stat("/data/green")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = m.Stat("/data/missing.csv")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = m.Open("/data/a.parquet")
	assert.ErrorContains(t, err, "not a directory")

	content, ok := m.Content("/data/green/2021/z.csv")
	require.True(t, ok)
	assert.Equal(t, "z", string(content))
}
