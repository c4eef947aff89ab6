package extractor

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to create zip entry: %v", err)
	}
	if _, err := f.Write([]byte(documentXML)); err != nil {
		t.Fatalf("failed to write zip entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDOCX(t *testing.T) {
	data := buildDOCX(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	text, err := New().Extract(data, "docx")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	want := "First paragraph.\nSecond paragraph."
	if text != want {
		t.Errorf("Extract returned %q, want %q", text, want)
	}
}

func TestExtractDOCXCorrupt(t *testing.T) {
	_, err := New().Extract([]byte("not a zip file"), "docx")
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("expected ErrCorruptFile, got %v", err)
	}
}

func TestExtractDOCXMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, _ := w.Create("word/styles.xml")
	f.Write([]byte("<styles/>"))
	w.Close()

	_, err := New().Extract(buf.Bytes(), "docx")
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("expected ErrCorruptFile, got %v", err)
	}
}

func TestExtractPDFCorrupt(t *testing.T) {
	_, err := New().Extract([]byte("%PDF-not-really"), "pdf")
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("expected ErrCorruptFile, got %v", err)
	}
}

func TestExtractDOCNotOLE(t *testing.T) {
	_, err := New().Extract([]byte("plain text pretending to be .doc"), "doc")
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("expected ErrCorruptFile, got %v", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	for _, format := range []string{"txt", "html", "xlsx", ""} {
		_, err := New().Extract([]byte("data"), format)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("format %q: expected ErrUnsupportedFormat, got %v", format, err)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"crlf", "line one\r\nline two\r", "line one\nline two"},
		{"space runs", "too   many\t \tspaces", "too many spaces"},
		{"newline runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"control chars", "a\x00b\x07c", "abc"},
		{"trailing spaces", "line   \nnext", "line\nnext"},
		{"surrounding whitespace", "  \n text \n ", "text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeText(tc.in); got != tc.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
