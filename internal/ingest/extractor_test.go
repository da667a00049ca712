package ingest

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-agency-platform/models"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractNotePassthrough(t *testing.T) {
	e := NewExtractor()
	res := &models.Resource{Kind: models.KindNote, Text: "brand voice guidelines"}

	text, err := e.Extract(res, nil)
	require.NoError(t, err)
	assert.Equal(t, "brand voice guidelines", text)
}

func TestExtractLinkPassthrough(t *testing.T) {
	e := NewExtractor()
	res := &models.Resource{Kind: models.KindLink, Text: "captured page content"}

	text, err := e.Extract(res, nil)
	require.NoError(t, err)
	assert.Equal(t, "captured page content", text)
}

func TestExtractEmptyTextFails(t *testing.T) {
	e := NewExtractor()
	res := &models.Resource{Kind: models.KindNote, Text: "   \n\t "}

	_, err := e.Extract(res, nil)
	require.Error(t, err)
	var extErr *ExtractionError
	assert.ErrorAs(t, err, &extErr)
}

func TestExtractPlainTextFile(t *testing.T) {
	e := NewExtractor()
	res := &models.Resource{Kind: models.KindFile, MediaType: "text/plain", OriginalName: "notes.txt"}

	text, err := e.Extract(res, []byte("plain text payload"))
	require.NoError(t, err)
	assert.Equal(t, "plain text payload", text)
}

func TestExtractRejectsBinaryAsText(t *testing.T) {
	e := NewExtractor()
	res := &models.Resource{Kind: models.KindFile, MediaType: "text/plain", OriginalName: "blob.bin"}

	_, err := e.Extract(res, []byte{0xff, 0xfe, 0x00, 0x81})
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
}

func TestExtractDocx(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	data := buildDocx(t, doc)

	e := NewExtractor()
	res := &models.Resource{Kind: models.KindFile, MediaType: models.MediaTypeDocx, OriginalName: "brief.docx"}

	text, err := e.Extract(res, data)
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
}

func TestExtractDocxMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	w.Write([]byte("<styles/>"))
	require.NoError(t, zw.Close())

	e := NewExtractor()
	res := &models.Resource{Kind: models.KindFile, MediaType: models.MediaTypeDocx}

	_, err = e.Extract(res, buf.Bytes())
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
}

func TestExtractCorruptPDF(t *testing.T) {
	e := NewExtractor()
	res := &models.Resource{Kind: models.KindFile, MediaType: models.MediaTypePDF, OriginalName: "broken.pdf"}

	_, err := e.Extract(res, []byte("not a pdf at all"))
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
}

func TestExtractUnknownKind(t *testing.T) {
	e := NewExtractor()
	res := &models.Resource{Kind: "carrier-pigeon"}

	_, err := e.Extract(res, nil)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
}
