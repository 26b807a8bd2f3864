package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := f.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestFromBytesDocx(t *testing.T) {
	docx := buildDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Lodging Requirement</w:t></w:r></w:p>
    <w:p><w:r><w:t>150 attendees expected</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	doc, err := FromBytes(context.Background(), docx, mimeDOCX, "req.docx")
	if err != nil {
		t.Fatalf("extract docx: %v", err)
	}
	if !strings.Contains(doc.Text, "Lodging Requirement") || !strings.Contains(doc.Text, "150 attendees") {
		t.Fatalf("unexpected text: %q", doc.Text)
	}
	if doc.Metadata["format"] != "docx" {
		t.Fatalf("expected docx format metadata, got %v", doc.Metadata)
	}
}

func TestFromBytesDocxTableRows(t *testing.T) {
	docx := buildDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>Check-in</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2026-03-10</w:t></w:r></w:p></w:tc></w:tr>
      <w:tr><w:tc><w:p><w:r><w:t>Check-out</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2026-03-14</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
  </w:body>
</w:document>`)

	doc, err := FromBytes(context.Background(), docx, "application/zip", "req.docx")
	if err != nil {
		t.Fatalf("extract docx: %v", err)
	}
	if len(doc.Tables) != 2 {
		t.Fatalf("expected two table rows, got %d: %v", len(doc.Tables), doc.Tables)
	}
	if doc.Tables[0][0] != "Check-in" || doc.Tables[0][1] != "2026-03-10" {
		t.Fatalf("unexpected first row: %v", doc.Tables[0])
	}
}

func TestFromBytesPlainText(t *testing.T) {
	doc, err := FromBytes(context.Background(), []byte("line one\ncity:  Austin"), "text/plain; charset=utf-8", "notes.txt")
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	if doc.Text == "" || doc.Metadata["format"] != "text" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestFromBytesUnsupported(t *testing.T) {
	_, err := FromBytes(context.Background(), []byte("GIF89a"), "image/gif", "logo.gif")
	if err == nil || !strings.Contains(err.Error(), "unsupported mime type") {
		t.Fatalf("expected unsupported mime error, got %v", err)
	}
}

func TestExtractReadsLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("some requirement"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	doc, err := LocalExtractor{}.Extract(context.Background(), path, "text/plain")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if doc.Text != "some requirement" {
		t.Fatalf("unexpected text %q", doc.Text)
	}
}
