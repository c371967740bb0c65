package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magic-research/ragd/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_TextFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.txt", "First paragraph.\n\nSecond paragraph.\n")

	doc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "notes", doc.Name)
	assert.Equal(t, path, doc.Path)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", doc.Text)
	assert.Zero(t, doc.PageCount)
}

func TestLoad_MarkdownFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "readme.md", "# Title\n\nSome    content here.")

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "readme", doc.Name)
	assert.Contains(t, doc.Text, "Some content here.")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "data.csv", "a,b,c")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestLoad_EmptyFileRejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.txt", "   \n\n  ")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "too    many   spaces", "too many spaces"},
		{"normalizes crlf", "line one\r\nline two", "line one\nline two"},
		{"collapses blank lines", "para one\n\n\n\n\npara two", "para one\n\npara two"},
		{"preserves single paragraph break", "a\n\nb", "a\n\nb"},
		{"trims edges", "  \n text \n ", "text"},
		{"trailing spaces before newline", "a   \n\n   \nb", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("doc.pdf"))
	assert.True(t, Supported("doc.PDF"))
	assert.True(t, Supported("doc.txt"))
	assert.True(t, Supported("doc.md"))
	assert.False(t, Supported("doc.docx"))
	assert.False(t, Supported("doc"))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "text")
	writeFile(t, dir, "a.md", "text")
	writeFile(t, dir, "ignore.csv", "a,b")
	writeFile(t, dir, ".hidden.txt", "secret")

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "c.txt", "text")

	hiddenDir := filepath.Join(dir, ".git")
	require.NoError(t, os.Mkdir(hiddenDir, 0o755))
	writeFile(t, hiddenDir, "d.txt", "text")

	paths, err := Scan(dir)
	require.NoError(t, err)

	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "a.md"), paths[0])
	assert.Equal(t, filepath.Join(dir, "b.txt"), paths[1])
	assert.Equal(t, filepath.Join(sub, "c.txt"), paths[2])
}

func TestScan_MissingDirectory(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}
