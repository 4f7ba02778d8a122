// Package extract turns downloaded PDFs into per-page text and guesses the
// document type so the parse pipeline can route each document to the right
// parser.
package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// Page is one page of extracted text, 1-indexed.
type Page struct {
	Number int
	Text   string
}

// Extractor extracts per-page text content from PDF files.
type Extractor interface {
	ExtractPages(ctx context.Context, pdfPath string) ([]Page, error)
}

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractPages runs pdftotext -layout on the given PDF and splits stdout on
// form feeds, one page per segment.
func (p *PdfToText) ExtractPages(ctx context.Context, pdfPath string) ([]Page, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "extract: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return splitPages(stdout.String()), nil
}

// splitPages breaks pdftotext output into pages on the form-feed separator.
// A trailing empty segment after the final form feed is dropped.
func splitPages(text string) []Page {
	segments := strings.Split(text, "\f")
	if n := len(segments); n > 1 && strings.TrimSpace(segments[n-1]) == "" {
		segments = segments[:n-1]
	}

	pages := make([]Page, len(segments))
	for i, seg := range segments {
		pages[i] = Page{Number: i + 1, Text: seg}
	}
	return pages
}
