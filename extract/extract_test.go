package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDocx assembles a minimal .docx archive with the given document body.
func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

const sampleDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>SERVICE AGREEMENT</w:t></w:r></w:p>
    <w:p><w:r><w:t>Clause 1: Payment</w:t></w:r><w:r><w:t xml:space="preserve"> terms are net 30.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Clause 2:</w:t><w:tab/><w:t>Liability is unlimited.</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestText_Docx(t *testing.T) {
	content := buildDocx(t, sampleDocument)

	text, err := Text(content, "agreement.docx")
	require.NoError(t, err)

	assert.Contains(t, text, "SERVICE AGREEMENT")
	assert.Contains(t, text, "Clause 1: Payment terms are net 30.")
	assert.Contains(t, text, "Clause 2:\tLiability is unlimited.")
	// Paragraphs stay separated.
	assert.NotContains(t, text, "AGREEMENTClause")
}

func TestText_DocxUppercaseExtension(t *testing.T) {
	content := buildDocx(t, sampleDocument)

	text, err := Text(content, "AGREEMENT.DOCX")
	require.NoError(t, err)
	assert.Contains(t, text, "SERVICE AGREEMENT")
}

func TestText_DocxMissingBody(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/styles.xml")
	require.NoError(t, err)
	f.Write([]byte("<styles/>"))
	require.NoError(t, w.Close())

	_, err = Text(buf.Bytes(), "broken.docx")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestText_DocxNotAnArchive(t *testing.T) {
	_, err := Text([]byte("definitely not a zip"), "broken.docx")
	assert.Error(t, err)
}

func TestText_DocxEmptyBody(t *testing.T) {
	content := buildDocx(t, `<w:document xmlns:w="urn:x"><w:body></w:body></w:document>`)
	_, err := Text(content, "empty.docx")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestText_PdfGarbage(t *testing.T) {
	_, err := Text([]byte("%PDF-1.7 but truncated"), "broken.pdf")
	assert.Error(t, err)
}

func TestText_PlainTextFallback(t *testing.T) {
	text, err := Text([]byte("  This contract is governed by the laws of Vietnam.\n"), "contract.txt")
	require.NoError(t, err)
	assert.Equal(t, "This contract is governed by the laws of Vietnam.", text)
}

func TestText_BinaryFallbackRejected(t *testing.T) {
	_, err := Text([]byte{0xff, 0xfe, 0x00, 0x01}, "image.png")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestText_EmptyPlainText(t *testing.T) {
	_, err := Text([]byte("   \n  "), "blank.txt")
	assert.ErrorIs(t, err, ErrEmpty)
}
