package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(sentences []Sentence) []string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, s.Text)
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "mixed terminators",
			input:    "Hello! How are you? Fine.",
			expected: []string{"Hello!", "How are you?", "Fine."},
		},
		{
			name:     "newlines and whitespace runs",
			input:    "First sentence.\nSecond\t\tsentence.\n\n   Third   one.",
			expected: []string{"First sentence.", "Second sentence.", "Third one."},
		},
		{
			name:     "punctuation runs stay together",
			input:    "Really?! Yes!!! Wait... Done.",
			expected: []string{"Really?!", "Yes!!!", "Wait...", "Done."},
		},
		{
			name:     "no space after terminator",
			input:    "One.Two!Three?",
			expected: []string{"One.", "Two!", "Three?"},
		},
		{
			name:     "no terminator",
			input:    "  Bir   zamanlar\nuzak bir ülkede  ",
			expected: []string{"Bir zamanlar uzak bir ülkede"},
		},
		{
			name:     "trailing fragment kept",
			input:    "Sentence one. and a fragment",
			expected: []string{"Sentence one.", "and a fragment"},
		},
		{
			name:     "leading terminator dropped",
			input:    "... Hi there.",
			expected: []string{"Hi there."},
		},
		{
			name:     "leading ellipsis before the only fragment",
			input:    "...Hello",
			expected: []string{"Hello"},
		},
		{
			name:     "unicode spaces collapse",
			input:    "a\u00a0\u00a0b.\u2003\u3000c!",
			expected: []string{"a b.", "c!"},
		},
		{
			name:     "only punctuation",
			input:    "?!.",
			expected: []string{"?!."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.input)
			assert.Equal(t, tt.expected, texts(got))
			for i, s := range got {
				assert.Equal(t, i, s.Index, "indices must follow input order")
				assert.NotEmpty(t, s.Text)
			}
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Empty(t, Split(""))
	assert.Empty(t, Split(" \n\t "))
}

func TestSplitNoTerminatorReturnsNormalizedText(t *testing.T) {
	inputs := []string{"plain words", "tabs\tand\nnewlines", "   padded   "}
	for _, in := range inputs {
		got := Split(in)
		require.Len(t, got, 1)
		assert.Equal(t, Normalize(in), got[0].Text)
	}
}

func TestSplitIsRepeatable(t *testing.T) {
	input := "Gece çöktü. Rüzgar mı esiyordu? Hayır!"
	first := Split(input)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Split(input))
	}
}
