// Package transcript turns raw recognizer output into normalized sentences.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	pronounI            = regexp.MustCompile(`\bi\b`)
	pronounIContraction = regexp.MustCompile(`\bi(['’](?:m|d|ll|ve|re|s))\b`)
	// whisper.cpp marks non-speech spans in brackets.
	nonSpeechMarker = regexp.MustCompile(`\[(?:BLANK_AUDIO|MUSIC|NOISE|SILENCE|INAUDIBLE)\]|\((?:music|silence|inaudible)\)`)
)

// Normalize collapses whitespace, strips non-speech markers, and optionally
// capitalizes sentence starts and the pronoun "I".
func Normalize(text string, capitalize bool) string {
	text = nonSpeechMarker.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || !capitalize {
		return text
	}
	return fixCase(text)
}

func fixCase(text string) string {
	runes := []rune(text)
	upperNext := true
	for i, r := range runes {
		if upperNext && unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			upperNext = false
			continue
		}
		if upperNext && unicode.IsDigit(r) {
			upperNext = false
			continue
		}
		if (r == '.' || r == '!' || r == '?') && isBoundary(runes, i) {
			upperNext = true
		}
	}

	out := pronounIContraction.ReplaceAllString(string(runes), "I$1")
	return replaceStandaloneI(out)
}

// replaceStandaloneI capitalizes "i" unless it is part of an initialism like "i.e.".
func replaceStandaloneI(text string) string {
	matches := pronounI.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		out.WriteString(text[last:start])
		if partOfInitialism(text, start, end) {
			out.WriteString(text[start:end])
		} else {
			out.WriteByte('I')
		}
		last = end
	}
	out.WriteString(text[last:])
	return out.String()
}

func partOfInitialism(text string, start, end int) bool {
	if end+1 < len(text) && text[end] == '.' && isASCIILetter(text[end+1]) {
		return true
	}
	return start >= 2 && text[start-1] == '.' && isASCIILetter(text[start-2])
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
