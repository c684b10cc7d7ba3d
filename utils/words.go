package utils

import (
	"bytes"
	"unicode"
	"unicode/utf8"
)

// IsWordStop reports whether r terminates an identifier when scanning
// backwards from the cursor. Underscore is part of a word.
func IsWordStop(r rune) bool {
	switch r {
	case '_':
		return false
	case '(', ')', '{', '}', '[', ']', '&', '*', '=', '"', '\'', ' ', '\t', '\n', '\r':
		return true
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// OffsetForPosition converts a zero-based line and byte column into a byte
// offset in content, clamping to the end of the line and of the content.
func OffsetForPosition(content []byte, line, column int) int {
	if line < 0 || column < 0 {
		return 0
	}
	offset := 0
	for l := 0; l < line; l++ {
		i := bytes.IndexByte(content[offset:], '\n')
		if i < 0 {
			return len(content)
		}
		offset += i + 1
	}
	end := bytes.IndexByte(content[offset:], '\n')
	if end < 0 {
		end = len(content) - offset
	}
	if column > end {
		column = end
	}
	return offset + column
}

// WordBefore returns the identifier characters immediately preceding offset.
func WordBefore(content []byte, offset int) string {
	if offset > len(content) {
		offset = len(content)
	}
	start := offset
	for start > 0 {
		r, size := utf8.DecodeLastRune(content[:start])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		if IsWordStop(r) {
			break
		}
		start -= size
	}
	return string(content[start:offset])
}
