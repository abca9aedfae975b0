package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encodings a text upload may declare, keyed by lower-case name.
var Encodings = map[string]encoding.Encoding{
	"utf-8":        encoding.Nop,
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	"windows-1250": charmap.Windows1250,
	"cp1250":       charmap.Windows1250,
	"iso-8859-2":   charmap.ISO8859_2,
	"iso-8859-16":  charmap.ISO8859_16,
	"windows-1252": charmap.Windows1252,
}

// DefaultFallback is used for text that is neither marked by a BOM nor valid
// UTF-8. Older Romanian legislation dumps are mostly Windows-1250.
const DefaultFallback = "windows-1250"

// TextSource handles plain text files, one physical line per output line.
type TextSource struct {
	// Fallback names the encoding assumed for non-UTF-8 input; empty means
	// DefaultFallback.
	Fallback string
}

func (s *TextSource) Read(r io.Reader, filename string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	name, enc, err := s.detect(data)
	if err != nil {
		return nil, err
	}
	data = trimBOM(data)

	scanner := bufio.NewScanner(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	doc := &Document{Title: baseTitle(filename), Encoding: name}
	for scanner.Scan() {
		doc.Lines = append(doc.Lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("decode %s text: %w", name, err)
	}
	return doc, nil
}

func (s *TextSource) detect(data []byte) (string, encoding.Encoding, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return "utf-8", encoding.Nop, nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return "utf-16le", Encodings["utf-16le"], nil
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return "utf-16be", Encodings["utf-16be"], nil
	case utf8.Valid(data):
		return "utf-8", encoding.Nop, nil
	}
	name := strings.ToLower(s.Fallback)
	if name == "" {
		name = DefaultFallback
	}
	enc, ok := Encodings[name]
	if !ok {
		return "", nil, fmt.Errorf("%w: encoding %q", ErrUnsupported, s.Fallback)
	}
	return name, enc, nil
}

func trimBOM(data []byte) []byte {
	for _, bom := range [][]byte{{0xEF, 0xBB, 0xBF}, {0xFF, 0xFE}, {0xFE, 0xFF}} {
		if bytes.HasPrefix(data, bom) {
			return data[len(bom):]
		}
	}
	return data
}
