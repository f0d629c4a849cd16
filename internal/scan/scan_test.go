package scan

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/s3bsync/s3bsync/internal/syncstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func scanKeys(t *testing.T, dirmap *syncstate.DirectoryMap) []string {
	t.Helper()
	files, err := Scan(dirmap)
	require.NoError(t, err)
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Key)
	}
	sort.Strings(keys)
	return keys
}

func TestScan_RecursiveWithIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "sub/b.txt", "bb")
	writeFile(t, root, "sub/deeper/c.txt", "ccc")
	writeFile(t, root, "scratch.tmp", "x")
	writeFile(t, root, ".DS_Store", "x")
	writeFile(t, root, ".git/HEAD", "ref")
	writeFile(t, root, "build/out.bin", "x")
	writeFile(t, root, ignoreFileName, "build/\n")

	dirmap := &syncstate.DirectoryMap{LocalPath: root, S3Prefix: "Documents", Recursive: true}
	assert.Equal(t, []string{
		"Documents/a.txt",
		"Documents/sub/b.txt",
		"Documents/sub/deeper/c.txt",
	}, scanKeys(t, dirmap))
}

func TestScan_NonRecursive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "sub/b.txt", "bb")

	dirmap := &syncstate.DirectoryMap{LocalPath: root, S3Prefix: "p", Recursive: false}
	assert.Equal(t, []string{"p/a.txt"}, scanKeys(t, dirmap))
}

func TestScan_RecordsSizeAndTime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	mtime := time.UnixMilli(1600000000000)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.txt"), mtime, mtime))

	files, err := Scan(&syncstate.DirectoryMap{LocalPath: root, S3Prefix: "p", Recursive: true})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(5), files[0].Size)
	assert.Equal(t, mtime.UnixMilli(), files[0].Modified)
	assert.Equal(t, filepath.Join(root, "a.txt"), files[0].Path)
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(&syncstate.DirectoryMap{LocalPath: filepath.Join(t.TempDir(), "gone"), S3Prefix: "p"})
	assert.Error(t, err)
}
