package transcript

import (
	"strings"
	"unicode/utf8"
)

// BufferOptions bounds sentence assembly.
type BufferOptions struct {
	// MinChars discards completed sentences of this many runes or fewer.
	MinChars int
	// MaxChars force-flushes pending text once it grows past this many runes.
	MaxChars int
	// Capitalize applies sentence casing to emitted sentences.
	Capitalize bool
}

// SentenceBuffer accumulates streaming text until a sentence boundary.
//
// It is not safe for concurrent use; the streaming worker owns it.
type SentenceBuffer struct {
	opts      BufferOptions
	pending   string
	discarded int
}

// NewSentenceBuffer creates an empty buffer.
func NewSentenceBuffer(opts BufferOptions) *SentenceBuffer {
	return &SentenceBuffer{opts: opts}
}

// Append adds recognized text and returns any sentences it completed.
// forced reports that the pending text hit MaxChars and was emitted whole.
func (b *SentenceBuffer) Append(text string) (sentences []string, forced bool) {
	text = Normalize(text, false)
	if text == "" {
		return nil, false
	}
	if b.pending == "" {
		b.pending = text
	} else {
		b.pending += " " + text
	}

	complete, rest := SplitSentences(b.pending)
	b.pending = rest
	for _, s := range complete {
		if kept, ok := b.keep(s); ok {
			sentences = append(sentences, kept)
		}
	}

	if b.opts.MaxChars > 0 && utf8.RuneCountInString(b.pending) > b.opts.MaxChars {
		if kept, ok := b.keep(b.pending); ok {
			sentences = append(sentences, kept)
		}
		b.pending = ""
		forced = true
	}
	return sentences, forced
}

// Flush emits whatever is pending as a final sentence.
func (b *SentenceBuffer) Flush() (string, bool) {
	pending := b.pending
	b.pending = ""
	if pending == "" {
		return "", false
	}
	return b.keep(pending)
}

// Pending returns the text still waiting for a boundary.
func (b *SentenceBuffer) Pending() string { return b.pending }

// Len reports the pending text length in runes.
func (b *SentenceBuffer) Len() int { return utf8.RuneCountInString(b.pending) }

// Discarded reports how many sentences were dropped for being too short.
func (b *SentenceBuffer) Discarded() int { return b.discarded }

// Reset drops pending text and returns how many runes were discarded.
func (b *SentenceBuffer) Reset() int {
	n := b.Len()
	b.pending = ""
	return n
}

func (b *SentenceBuffer) keep(sentence string) (string, bool) {
	sentence = strings.TrimSpace(sentence)
	if utf8.RuneCountInString(sentence) <= b.opts.MinChars {
		b.discarded++
		return "", false
	}
	if b.opts.Capitalize {
		sentence = Normalize(sentence, true)
	}
	return sentence, true
}
