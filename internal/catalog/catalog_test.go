package catalog

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestScanSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	writeFile(t, path, "hello world")

	cat, err := Scan([]string{path})
	require.NoError(t, err)
	require.Equal(t, 1, cat.Len())

	descs := cat.Descriptors()
	for _, d := range descs {
		assert.Equal(t, "doc.pdf", d.Name)
		assert.EqualValues(t, len("hello world"), d.Size)
	}
}

func TestScanDirectoryUsesRelativeForwardSlashNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "photos", "a.jpg"), "aaa")
	writeFile(t, filepath.Join(dir, "photos", "nested", "b.png"), "bbb")

	cat, err := Scan([]string{filepath.Join(dir, "photos")})
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())

	names := map[string]bool{}
	for _, d := range cat.Descriptors() {
		names[d.Name] = true
	}
	assert.True(t, names["a.jpg"])
	assert.True(t, names["nested/b.png"])
}

func TestScanSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.txt")
	writeFile(t, target, "real")

	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	cat, err := Scan([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Len())
}

func TestScanNoFilesFoundErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Scan([]string{dir})
	assert.Error(t, err)
}

func TestScanNonExistentPathErrors(t *testing.T) {
	_, err := Scan([]string{"/does/not/exist/anywhere"})
	assert.Error(t, err)
}

func TestOpenStreamsExactBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := "the quick brown fox"
	writeFile(t, path, content)

	cat, err := Scan([]string{path})
	require.NoError(t, err)

	var id string
	for k := range cat.Descriptors() {
		id = k
	}

	rc, name, err := cat.Open(id)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "data.bin", name)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestClassifyByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "b.unknownext"), "x")

	cat, err := Scan([]string{dir})
	require.NoError(t, err)

	types := map[string]string{}
	for _, d := range cat.Descriptors() {
		types[d.Name] = string(d.FileType)
	}
	assert.Equal(t, "image", types["a.jpg"])
	assert.Equal(t, "other", types["b.unknownext"])
}
