package extractor

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	textunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// oleMagic is the compound-file header every legacy .doc starts with.
var oleMagic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// extractDOC scrapes readable text out of a legacy Word binary. There
// is no complete pure-Go .doc parser, so this walks the raw stream for
// UTF-16LE and single-byte text runs, which covers the document body
// of every Word 97+ file.
func extractDOC(data []byte) (string, error) {
	if !bytes.HasPrefix(data, oleMagic) {
		return "", ErrCorruptFile
	}

	var out strings.Builder
	appendRun := func(run string) {
		run = strings.TrimSpace(run)
		if len([]rune(run)) < 4 {
			return
		}
		out.WriteString(run)
		out.WriteString("\n")
	}

	// UTF-16LE runs: pairs of (printable byte, 0x00)
	var u16 []byte
	for i := 0; i+1 < len(data); i += 2 {
		if data[i+1] == 0x00 && isTextByte(data[i]) {
			u16 = append(u16, data[i], data[i+1])
			continue
		}
		if len(u16) > 0 {
			appendRun(decodeUTF16LE(u16))
			u16 = nil
		}
	}
	if len(u16) > 0 {
		appendRun(decodeUTF16LE(u16))
	}

	// Single-byte runs for older CP1252 documents, only if the UTF-16
	// pass found nothing usable.
	if out.Len() == 0 {
		var run []byte
		for _, b := range data {
			if isTextByte(b) || b >= 0xa0 {
				run = append(run, b)
				continue
			}
			if len(run) > 0 {
				appendRun(decodeCP1252(run))
				run = nil
			}
		}
		if len(run) > 0 {
			appendRun(decodeCP1252(run))
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", ErrCorruptFile
	}
	return text, nil
}

func isTextByte(b byte) bool {
	return (b >= 0x20 && b <= 0x7e) || b == '\t' || b == '\n' || b == '\r'
}

func decodeUTF16LE(data []byte) string {
	decoder := textunicode.UTF16(textunicode.LittleEndian, textunicode.IgnoreBOM).NewDecoder()
	decoded, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return ""
	}
	return filterPrintable(string(decoded))
}

func decodeCP1252(data []byte) string {
	decoder := charmap.Windows1252.NewDecoder()
	decoded, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return filterPrintable(string(data))
	}
	return filterPrintable(string(decoded))
}

func filterPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			return r
		}
		return ' '
	}, s)
}
