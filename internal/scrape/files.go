// Package scrape orchestrates the two-pass portal scrape: a listing pass
// that discovers filings and a detail pass that harvests metadata and
// documents, with batch flushes, browser recycling, and rewind-on-error.
package scrape

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var filenameDisallowed = regexp.MustCompile(`[^A-Za-z0-9 _.-]`)

const maxFilenameLen = 200

// SanitizeFilename maps a portal document name onto a safe filename:
// disallowed characters become underscores and the result is trimmed to 200
// characters. A name that sanitizes to nothing is an error.
func SanitizeFilename(name string) (string, error) {
	s := filenameDisallowed.ReplaceAllString(name, "_")
	s = strings.TrimSpace(s)
	if len(s) > maxFilenameLen {
		s = s[:maxFilenameLen]
		s = strings.TrimSpace(s)
	}
	if s == "" || strings.Trim(s, "_.") == "" {
		return "", eris.Errorf("scrape: document name %q sanitizes to nothing", name)
	}
	return s, nil
}

// DocumentPath places a document in the storage tree:
// {root}/{state}/{naic}/{tracking}/{name}. Empty NAIC codes group under
// "unknown" so a late carrier match does not move files.
func DocumentPath(root, state, naic, tracking, name string) string {
	if naic == "" {
		naic = "unknown"
	}
	return filepath.Join(root, state, naic, tracking, name)
}

// AlreadyDownloaded reports whether a non-empty file exists at path.
// Zero-byte files are failed downloads and are retried.
func AlreadyDownloaded(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}

// SaveFile moves a downloaded temp file into its final location, hashing it
// on the way. Returns the byte size and hex SHA-256.
func SaveFile(tmpPath, destPath string) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, "", eris.Wrap(err, "scrape: create document dir")
	}

	src, err := os.Open(tmpPath)
	if err != nil {
		return 0, "", eris.Wrap(err, "scrape: open downloaded file")
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return 0, "", eris.Wrap(err, "scrape: create document file")
	}
	defer dst.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		os.Remove(destPath)
		return 0, "", eris.Wrap(err, "scrape: write document file")
	}
	if n == 0 {
		os.Remove(destPath)
		return 0, "", eris.New("scrape: downloaded file is empty")
	}

	src.Close()
	os.Remove(tmpPath)
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// MIMEForName guesses a MIME type from the file extension. The portal
// serves almost exclusively PDFs.
func MIMEForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".xls", ".xlsx":
		return "application/vnd.ms-excel"
	case ".doc", ".docx":
		return "application/msword"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
