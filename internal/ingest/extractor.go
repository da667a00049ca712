package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"saas-agency-platform/models"
)

// Extractor turns a resource's payload into plain text. Link and note
// resources carry their text inline; file resources are dispatched on media
// type. Output is not yet cleaned; the chunker owns whitespace collapsing.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the plain text of a resource. For file resources data is
// the raw payload; for link and note resources data is ignored. A payload
// that yields no usable text is an ExtractionError.
func (e *Extractor) Extract(res *models.Resource, data []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch res.Kind {
	case models.KindLink, models.KindNote:
		text = res.Text
	case models.KindFile:
		text, err = e.extractFile(res, data)
		if err != nil {
			return "", err
		}
	default:
		return "", &ExtractionError{Reason: fmt.Sprintf("unknown resource kind %q", res.Kind)}
	}

	if strings.TrimSpace(text) == "" {
		return "", &ExtractionError{Reason: "no extractable text"}
	}
	return text, nil
}

func (e *Extractor) extractFile(res *models.Resource, data []byte) (string, error) {
	switch res.MediaType {
	case models.MediaTypePDF:
		return extractPDF(data)
	case models.MediaTypeDocx:
		return extractDocx(data)
	default:
		// Everything else is treated as plain text, as long as it decodes.
		if !utf8.Valid(data) {
			return "", &ExtractionError{Reason: fmt.Sprintf("file %q is not valid UTF-8 text", res.OriginalName)}
		}
		return string(data), nil
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Reason: "unreadable PDF", Err: err}
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single broken page should not sink the whole document.
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// docx bodies are a zip archive with the text in word/document.xml. Text
// lives in w:t elements; paragraph ends become newlines so sentence
// boundaries survive into chunking.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Reason: "unreadable docx archive", Err: err}
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", &ExtractionError{Reason: "docx missing word/document.xml"}
	}

	rc, err := doc.Open()
	if err != nil {
		return "", &ExtractionError{Reason: "cannot open word/document.xml", Err: err}
	}
	defer rc.Close()

	var sb strings.Builder
	decoder := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &ExtractionError{Reason: "malformed document.xml", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
