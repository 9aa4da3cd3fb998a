// Package extract pulls plain text out of uploaded documents.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned for file types extract cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Text extracts plain text from a document. The format is chosen by file
// extension, falling back to content sniffing for missing extensions.
func Text(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return PDF(data)
	case ".txt", ".md", ".markdown":
		return string(data), nil
	case "":
		if bytes.HasPrefix(data, []byte("%PDF")) {
			return PDF(data)
		}
		if isProbablyText(data) {
			return string(data), nil
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

// PDF extracts the plain text of every page of a PDF.
func PDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return string(text), nil
}

// isProbablyText reports whether data looks like plain text: no NUL bytes
// and mostly printable characters in the leading sample.
func isProbablyText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	printable := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			printable++
		}
	}
	return float64(printable)/float64(len(sample)) > 0.9
}
