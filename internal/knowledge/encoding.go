// ABOUTME: Character set detection and UTF-8 decoding for uploaded and synced files
// ABOUTME: Honors byte order marks and declared charsets, then falls back to heuristics

package knowledge

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrBinaryContent is returned for data that does not decode to text.
var ErrBinaryContent = errors.New("content is not text")

// ErrUnknownCharset is returned for a declared charset x/text does not know.
var ErrUnknownCharset = errors.New("unknown charset")

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts data to UTF-8 and names the source encoding. A byte order
// mark wins over declared; declared (a WHATWG label such as "latin1" or
// "shift_jis") wins over detection. Undeclared data that is not valid UTF-8
// or BOM-less UTF-16 is read as windows-1252.
func Decode(data []byte, declared string) (string, string, error) {
	name, enc, body, err := pickEncoding(data, strings.TrimSpace(declared))
	if err != nil {
		return "", "", err
	}

	var text string
	if enc == nil {
		text = string(body)
	} else {
		out, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return "", "", fmt.Errorf("decoding %s: %w", name, err)
		}
		text = string(out)
	}

	if strings.ContainsRune(text, 0) {
		return "", "", ErrBinaryContent
	}
	return strings.ToValidUTF8(text, "\uFFFD"), name, nil
}

// pickEncoding returns the encoding name, its decoder (nil for UTF-8) and
// data with any BOM removed.
func pickEncoding(data []byte, declared string) (string, encoding.Encoding, []byte, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return "utf-8", nil, data[len(bomUTF8):], nil
	case bytes.HasPrefix(data, bomUTF16LE):
		return "utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), data[2:], nil
	case bytes.HasPrefix(data, bomUTF16BE):
		return "utf-16be", unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), data[2:], nil
	}

	if declared != "" {
		enc, err := htmlindex.Get(declared)
		if err != nil {
			return "", nil, nil, fmt.Errorf("%w: %s", ErrUnknownCharset, declared)
		}
		name, _ := htmlindex.Name(enc)
		if name == "utf-8" {
			return name, nil, data, nil
		}
		return name, enc, data, nil
	}

	// NUL bytes are valid UTF-8, so UTF-16 has to be ruled out first
	if order, ok := sniffUTF16(data); ok {
		if order == unicode.LittleEndian {
			return "utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), data, nil
		}
		return "utf-16be", unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), data, nil
	}
	if utf8.Valid(data) {
		return "utf-8", nil, data, nil
	}
	return "windows-1252", charmap.Windows1252, data, nil
}

// sniffUTF16 spots BOM-less UTF-16 holding mostly ASCII: at least three in
// four code units have a zero high byte on the same side.
func sniffUTF16(data []byte) (unicode.Endianness, bool) {
	if len(data) < 4 || len(data)%2 != 0 {
		return unicode.LittleEndian, false
	}
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}

	var evenZero, oddZero int
	for i := 0; i+1 < len(sample); i += 2 {
		if sample[i] == 0 {
			evenZero++
		}
		if sample[i+1] == 0 {
			oddZero++
		}
	}

	units := len(sample) / 2
	switch {
	case oddZero*4 >= units*3:
		return unicode.LittleEndian, true
	case evenZero*4 >= units*3:
		return unicode.BigEndian, true
	}
	return unicode.LittleEndian, false
}
