package transcript

import (
	"strings"
	"unicode"
)

type abbreviationKind uint8

const (
	// abbreviationNeverTerminal is almost always followed by more of the same sentence.
	abbreviationNeverTerminal abbreviationKind = iota
	// abbreviationMaybeTerminal ends a sentence only when the next word says so.
	abbreviationMaybeTerminal
)

var (
	abbreviations = map[string]abbreviationKind{
		// Latin and citation forms.
		"e.g": abbreviationNeverTerminal,
		"i.e": abbreviationNeverTerminal,
		"cf":  abbreviationNeverTerminal,
		"al":  abbreviationMaybeTerminal,
		"etc": abbreviationMaybeTerminal,
		"vs":  abbreviationMaybeTerminal,

		// Titles.
		"dr":   abbreviationNeverTerminal,
		"mr":   abbreviationNeverTerminal,
		"mrs":  abbreviationNeverTerminal,
		"ms":   abbreviationNeverTerminal,
		"prof": abbreviationNeverTerminal,

		// References and units common in lectures.
		"approx": abbreviationNeverTerminal,
		"ch":     abbreviationNeverTerminal,
		"eq":     abbreviationNeverTerminal,
		"fig":    abbreviationNeverTerminal,
		"no":     abbreviationMaybeTerminal,
		"pp":     abbreviationNeverTerminal,
		"sec":    abbreviationMaybeTerminal,
		"vol":    abbreviationNeverTerminal,
		"hr":     abbreviationMaybeTerminal,
		"hrs":    abbreviationMaybeTerminal,
		"min":    abbreviationMaybeTerminal,
	}

	// Lowercase words that open a new sentence in unpunctuated ASR output.
	boundaryOpeners = map[string]struct{}{
		"finally":   {},
		"however":   {},
		"meanwhile": {},
		"next":      {},
		"now":       {},
		"so":        {},
		"then":      {},
		"therefore": {},
		"he":        {},
		"i":         {},
		"it":        {},
		"she":       {},
		"they":      {},
		"we":        {},
		"you":       {},
	}
)

// isBoundary reports whether the terminal punctuation at idx ends a sentence.
func isBoundary(runes []rune, idx int) bool {
	switch runes[idx] {
	case '!', '?':
		return true
	case '.':
	default:
		return false
	}

	if idx+1 < len(runes) {
		next := runes[idx+1]
		// 3.14, example.com, "..."
		if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '.' {
			return false
		}
	}

	token := strings.ToLower(tokenBefore(runes, idx))
	if token == "" {
		return true
	}
	if kind, ok := abbreviations[token]; ok {
		if kind == abbreviationNeverTerminal {
			return false
		}
		return nextWordOpensSentence(runes, idx+1)
	}
	if isInitialism(token) {
		return nextWordOpensSentence(runes, idx+1)
	}
	return true
}

// tokenBefore returns the letters-and-periods run immediately before idx,
// without its surrounding periods ("u.s" for "the u.s.").
func tokenBefore(runes []rune, idx int) string {
	start := idx - 1
	for start >= 0 && (unicode.IsLetter(runes[start]) || runes[start] == '.') {
		start--
	}
	return strings.Trim(string(runes[start+1:idx]), ".")
}

func isInitialism(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		r := []rune(part)
		if len(r) != 1 || !unicode.IsLetter(r[0]) {
			return false
		}
	}
	return true
}

// nextWordOpensSentence looks past whitespace and closing quotes for the next
// word. Running out of text counts as a boundary.
func nextWordOpensSentence(runes []rune, from int) bool {
	i := from
	for i < len(runes) && (unicode.IsSpace(runes[i]) || isClosingRune(runes[i])) {
		i++
	}
	if i >= len(runes) {
		return true
	}
	if !unicode.IsLetter(runes[i]) {
		return false
	}
	if unicode.IsUpper(runes[i]) {
		return true
	}

	end := i
	for end < len(runes) && unicode.IsLetter(runes[end]) {
		end++
	}
	_, ok := boundaryOpeners[string(runes[i:end])]
	return ok
}

func isClosingRune(r rune) bool {
	switch r {
	case ')', ']', '}', '\'', '"', '’', '”':
		return true
	default:
		return false
	}
}

// SplitSentences cuts text at sentence boundaries. Trailing text without a
// terminal boundary is returned as rest.
func SplitSentences(text string) (sentences []string, rest string) {
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isBoundary(runes, i) {
			continue
		}
		end := i + 1
		// Keep trailing quotes and repeated terminators with their sentence.
		for end < len(runes) && (isClosingRune(runes[end]) || runes[end] == '!' || runes[end] == '?') {
			end++
		}
		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = end
		i = end - 1
	}
	return sentences, strings.TrimSpace(string(runes[start:]))
}
