// Package segment splits narrative text into sentence-level units.
package segment

import (
	"regexp"
	"strings"
)

// Sentence is one punctuation-delimited unit of input text.
// Index defines assembly order.
type Sentence struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

var terminatorRegex = regexp.MustCompile(`[.!?]+\s*`)

// Normalize collapses runs of Unicode whitespace, newlines included, to single
// spaces and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split returns the sentences of text in input order. Each sentence keeps its
// terminal punctuation run. Text without any usable terminator comes back as a
// single sentence holding the normalized text. Empty input yields no sentences.
func Split(text string) []Sentence {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	var sentences []Sentence
	appendChunk := func(chunk string) {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			sentences = append(sentences, Sentence{Index: len(sentences), Text: chunk})
		}
	}

	last := 0
	for _, loc := range terminatorRegex.FindAllStringIndex(normalized, -1) {
		body := normalized[last:loc[0]]
		// A terminator run with nothing before it is dropped with its empty chunk.
		if strings.TrimSpace(body) != "" {
			appendChunk(body + normalized[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	appendChunk(normalized[last:])

	if len(sentences) == 0 {
		return []Sentence{{Index: 0, Text: normalized}}
	}
	return sentences
}
