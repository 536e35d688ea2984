package script

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Smart punctuation and odd whitespace that editors substitute into source.
// Normalized to ASCII equivalents before any parsing so the extractors only
// deal with plain quotes and spaces.
var punctuationReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"‚", "'",
	"‛", "'",
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"„", `"`,
	"‟", `"`,
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	" ", " ", // no-break space
	" ", " ",
	" ", " ",
	"　", " ",
	"\uFEFF", "", // stray BOM
)

var bomPrefixes = [][]byte{
	{0xef, 0xbb, 0xbf}, // UTF-8
	{0xff, 0xfe},       // UTF-16 LE
	{0xfe, 0xff},       // UTF-16 BE
}

// normalizeSource strips a byte-order mark, converts line endings to \n, and
// replaces smart punctuation with ASCII. Returns ok=false for content that is
// not text (binary files are never executable).
func normalizeSource(raw []byte) (string, bool) {
	for _, bom := range bomPrefixes {
		if bytes.HasPrefix(raw, bom) {
			raw = raw[len(bom):]
			break
		}
	}

	if looksBinary(raw) {
		return "", false
	}

	text := string(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = punctuationReplacer.Replace(text)
	return text, true
}

// looksBinary reports whether content contains NUL bytes or is mostly
// invalid UTF-8, the same heuristic editors use for "is this text".
func looksBinary(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return true
	}
	sample := raw
	if len(sample) > 8192 {
		sample = sample[:8192]
	}
	invalid := 0
	for len(sample) > 0 {
		r, size := utf8.DecodeRune(sample)
		if r == utf8.RuneError && size == 1 {
			invalid++
		}
		sample = sample[size:]
	}
	return invalid > len(raw)/10
}
