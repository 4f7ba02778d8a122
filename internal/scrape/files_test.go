package scrape

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	got, err := SanitizeFilename("Rate Manual (Rev. 3)/2026*.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Rate Manual _Rev. 3__2026_.pdf", got)

	got, err = SanitizeFilename("plain-name_1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "plain-name_1.pdf", got)
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	got, err := SanitizeFilename(strings.Repeat("a", 300) + ".pdf")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), 200)
}

func TestSanitizeFilenameRejectsEmpty(t *testing.T) {
	_, err := SanitizeFilename("///")
	assert.Error(t, err)

	_, err = SanitizeFilename("   ")
	assert.Error(t, err)
}

func TestDocumentPath(t *testing.T) {
	got := DocumentPath("/data", "TX", "12345", "ABCD-134267916", "manual.pdf")
	assert.Equal(t, filepath.Join("/data", "TX", "12345", "ABCD-134267916", "manual.pdf"), got)

	got = DocumentPath("/data", "TX", "", "ABCD-134267916", "manual.pdf")
	assert.Contains(t, got, filepath.Join("TX", "unknown"))
}

func TestAlreadyDownloaded(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.pdf")
	assert.False(t, AlreadyDownloaded(missing))

	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.False(t, AlreadyDownloaded(empty), "zero-byte files are failed downloads")

	full := filepath.Join(dir, "full.pdf")
	require.NoError(t, os.WriteFile(full, []byte("%PDF-1.7"), 0o644))
	assert.True(t, AlreadyDownloaded(full))
}

func TestSaveFile(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp-download")
	require.NoError(t, os.WriteFile(tmp, []byte("%PDF-1.7 content"), 0o644))

	dest := filepath.Join(dir, "TX", "12345", "ABCD-1", "manual.pdf")
	size, sum, err := SaveFile(tmp, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(16), size)
	assert.Len(t, sum, 64)
	assert.True(t, AlreadyDownloaded(dest))

	_, statErr := os.Stat(tmp)
	assert.True(t, os.IsNotExist(statErr), "temp file is removed after save")
}

func TestSaveFileRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp-download")
	require.NoError(t, os.WriteFile(tmp, nil, 0o644))

	_, _, err := SaveFile(tmp, filepath.Join(dir, "out.pdf"))
	assert.Error(t, err)
}

func TestMIMEForName(t *testing.T) {
	assert.Equal(t, "application/pdf", MIMEForName("Manual.PDF"))
	assert.Equal(t, "application/octet-stream", MIMEForName("notes.txt"))
}
