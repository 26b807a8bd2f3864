package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText = "text/plain"
)

// Document is the structured output of text extraction.
type Document struct {
	Text     string
	Tables   [][]string
	Metadata map[string]string
}

// Extractor turns a local file into text, table rows, and metadata.
type Extractor interface {
	Extract(ctx context.Context, localPath, mimeHint string) (Document, error)
}

// LocalExtractor reads files from disk.
// Libraries used: github.com/ledongthuc/pdf (PDF); DOCX is read straight from
// word/document.xml inside the zip container.
type LocalExtractor struct{}

// Extract pulls text from the file at localPath.
func (LocalExtractor) Extract(ctx context.Context, localPath, mimeHint string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return Document{}, fmt.Errorf("extract %s: %w", localPath, err)
	}

	doc, err := FromBytes(ctx, data, mimeHint, filepath.Base(localPath))
	if err != nil {
		return Document{}, fmt.Errorf("extract %s mime %s: %w", localPath, mimeHint, err)
	}
	return doc, nil
}

// FromBytes extracts from an in-memory payload.
func FromBytes(ctx context.Context, data []byte, mimeHint, fileName string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	switch normalizeMimeType(mimeHint, fileName, data) {
	case mimePDF:
		return extractPDF(data)
	case mimeDOCX:
		return extractDOCX(data)
	case mimeText:
		return finishDocument(string(data), map[string]string{"format": "text"}), nil
	default:
		return Document{}, fmt.Errorf("unsupported mime type: %s", mimeHint)
	}
}

func extractPDF(data []byte) (Document, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return Document{}, err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return Document{}, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return Document{}, err
	}
	meta := map[string]string{
		"format": "pdf",
		"pages":  strconv.Itoa(pdfReader.NumPage()),
	}
	return finishDocument(buf.String(), meta), nil
}

func extractDOCX(data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, fmt.Errorf("empty docx data")
	}
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return Document{}, err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return Document{}, fmt.Errorf("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return Document{}, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return Document{}, err
	}

	return finishDocument(stripDocxXML(string(raw)), map[string]string{"format": "docx"}), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	inCell := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "tc" {
				inCell = true
			}
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			switch t.Name.Local {
			case "tc":
				inCell = false
				buf.WriteString("\t")
			case "p", "br":
				if !inCell && buf.Len() > 0 {
					buf.WriteString("\n")
				}
			case "tr":
				buf.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// finishDocument splits out table-looking lines (tab or multi-space
// separated cells) so downstream passes can reference rows directly.
func finishDocument(text string, meta map[string]string) Document {
	doc := Document{Text: text, Metadata: meta}
	for _, line := range strings.Split(text, "\n") {
		cells := splitCells(line)
		if len(cells) >= 2 {
			doc.Tables = append(doc.Tables, cells)
		}
	}
	return doc
}

func splitCells(line string) []string {
	var parts []string
	if strings.Contains(line, "\t") {
		parts = strings.Split(line, "\t")
	} else {
		parts = strings.Split(line, "  ")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeMimeType(mimeType, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case mimePDF, mimeDOCX, mimeText:
		return clean
	}
	if clean == "application/zip" || clean == "" || clean == "application/octet-stream" {
		if mapped := mapFormatFromContent(data); mapped != "" {
			return mapped
		}
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".pdf":
			return mimePDF
		case ".docx":
			return mimeDOCX
		case ".txt":
			return mimeText
		}
	}
	return clean
}

func mapFormatFromContent(data []byte) string {
	if len(data) >= 4 && bytes.HasPrefix(data, []byte("%PDF")) {
		return mimePDF
	}
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return mimeDOCX
		}
	}
	return ""
}
