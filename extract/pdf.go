package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts the text layer from a PDF document.
func pdfText(content []byte, filename string) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%s: parse pdf: %w", filename, err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%s: extract pdf text: %w", filename, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", fmt.Errorf("%s: read pdf text: %w", filename, err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		// Scanned PDFs have no text layer; OCR is out of scope.
		return "", fmt.Errorf("%s: %w", filename, ErrEmpty)
	}
	return text, nil
}
