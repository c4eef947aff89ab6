package extractor

import (
	"errors"
	"regexp"
	"strings"
)

// Extraction failures are not transient: the pipeline fails the
// document without retrying when either of these is returned.
var (
	// ErrUnsupportedFormat is returned for formats outside {pdf, doc, docx}.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptFile is returned when parsing yields no recoverable text.
	ErrCorruptFile = errors.New("no recoverable text in document")
)

// Extractor normalizes raw document bytes into plain text.
type Extractor interface {
	Extract(data []byte, format string) (string, error)
}

// TextExtractor extracts plain text from the supported document formats.
type TextExtractor struct{}

func New() *TextExtractor {
	return &TextExtractor{}
}

// Extract parses data according to the declared format and returns
// whitespace-normalized plain text, so downstream chunking behaves the
// same regardless of the source format.
func (e *TextExtractor) Extract(data []byte, format string) (string, error) {
	var text string
	var err error

	switch strings.ToLower(format) {
	case "pdf":
		text, err = extractPDF(data)
	case "docx":
		text, err = extractDOCX(data)
	case "doc":
		text, err = extractDOC(data)
	default:
		return "", ErrUnsupportedFormat
	}
	if err != nil {
		return "", err
	}

	text = NormalizeText(text)
	if text == "" {
		return "", ErrCorruptFile
	}
	return text, nil
}

var (
	controlCharsRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	spaceRunsRe    = regexp.MustCompile(`[ \t]+`)
	newlineRunsRe  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText collapses whitespace runs and strips control characters
// so that chunk boundaries are deterministic across formats.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlCharsRe.ReplaceAllString(text, "")
	text = spaceRunsRe.ReplaceAllString(text, " ")
	text = newlineRunsRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
