package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("cow.JPG"))
	assert.True(t, IsImageFile("/tmp/herd/cow.webp"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("noext"))
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", MimeType("a.jpeg"))
	assert.Equal(t, "image/png", MimeType("a.png"))
	assert.Equal(t, "", MimeType("a.bmp"))
}

func TestGenerateOutputFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "cow_annotated.png"),
		GenerateOutputFilename("/in/cow.jpg", "out", "_annotated", "png"))
	assert.Equal(t, filepath.Join("out", "cow.jpg"),
		GenerateOutputFilename("/in/cow.jpg", "out", "", ""))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "barn"), 0755))
	for _, name := range []string{"a.jpg", "barn/b.png", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSpoolTemp(t *testing.T) {
	dir := t.TempDir()

	path, release, err := SpoolTemp(dir, "upload-*", strings.NewReader("image bytes"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))

	release()
	release()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSpoolTempWriteFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()

	_, _, err := SpoolTemp(dir, "upload-*", failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
