package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_PlainText(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.TXT")
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0o644))

	got, err := File(p)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.True(t, Supported(p))
}

func TestFile_Unsupported(t *testing.T) {
	p := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(p, []byte{0x89}, 0o644))

	_, err := File(p)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, Supported(p))
}

func TestFile_Docx(t *testing.T) {
	p := filepath.Join(t.TempDir(), "letter.docx")
	f, err := os.Create(p)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>The sky</w:t></w:r><w:r><w:t xml:space="preserve"> is blue.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Grass is green.</w:t></w:r></w:p>
    <w:tbl><w:tr><w:tc><w:p><w:r><w:t>Cells count too.</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
  </w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	got, err := File(p)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue. Grass is green. Cells count too.", got)
}

func TestFile_BrokenDocx(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.docx")
	require.NoError(t, os.WriteFile(p, []byte("not a zip"), 0o644))

	_, err := File(p)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}
