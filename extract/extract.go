// Package extract pulls plain text out of uploaded contract documents.
// Extraction failures are terminal for the file in question: they indicate
// format problems, not transient conditions, so callers skip and log rather
// than retry.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported marks files whose format cannot be extracted.
var ErrUnsupported = errors.New("unsupported document format")

// ErrEmpty marks documents that parsed but contained no text.
var ErrEmpty = errors.New("document contains no extractable text")

// Text extracts plain text from file content, dispatching on the file
// extension. Unknown extensions are decoded as UTF-8 text.
func Text(content []byte, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return pdfText(content, filename)
	case ".docx":
		return docxText(content, filename)
	default:
		if !utf8.Valid(content) {
			return "", fmt.Errorf("%s: binary content: %w", filename, ErrUnsupported)
		}
		text := strings.TrimSpace(string(content))
		if text == "" {
			return "", fmt.Errorf("%s: %w", filename, ErrEmpty)
		}
		return text, nil
	}
}
