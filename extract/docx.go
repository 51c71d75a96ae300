package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docxText extracts paragraph text from a DOCX document. A .docx file is a
// zip archive; the document body lives in word/document.xml as
// WordprocessingML, where runs of text sit in <w:t> elements grouped into
// <w:p> paragraphs.
func docxText(content []byte, filename string) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%s: open docx archive: %w", filename, err)
	}

	var document *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return "", fmt.Errorf("%s: no word/document.xml in archive: %w", filename, ErrUnsupported)
	}

	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("%s: open document body: %w", filename, err)
	}
	defer rc.Close()

	text, err := wordprocessingText(rc)
	if err != nil {
		return "", fmt.Errorf("%s: parse document body: %w", filename, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrEmpty)
	}
	return text, nil
}

// wordprocessingText walks the WordprocessingML token stream collecting text
// runs and paragraph breaks.
func wordprocessingText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var sb strings.Builder
	var inText bool

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}

	return sb.String(), nil
}
