package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		sentences []string
		rest      string
	}{
		{
			name:      "simple terminators",
			input:     "Sampling error is random. Is bias random? No!",
			sentences: []string{"Sampling error is random.", "Is bias random?", "No!"},
		},
		{
			name:      "trailing fragment",
			input:     "The survey runs monthly. It covers",
			sentences: []string{"The survey runs monthly."},
			rest:      "It covers",
		},
		{
			name:      "decimal is not a boundary",
			input:     "The rate was 6.5 percent last year. Then",
			sentences: []string{"The rate was 6.5 percent last year."},
			rest:      "Then",
		},
		{
			name:      "title abbreviation",
			input:     "As Dr. Smith explained the model is linear. Fine.",
			sentences: []string{"As Dr. Smith explained the model is linear.", "Fine."},
		},
		{
			name:      "latin abbreviation",
			input:     "Use a proxy, e.g. income, for wealth.",
			sentences: []string{"Use a proxy, e.g. income, for wealth."},
		},
		{
			name:      "ambiguous abbreviation followed by capital",
			input:     "We saw apples, pears, etc. The next topic",
			sentences: []string{"We saw apples, pears, etc."},
			rest:      "The next topic",
		},
		{
			name:      "ambiguous abbreviation mid sentence",
			input:     "apples, pears, etc. and more",
			rest:      "apples, pears, etc. and more",
		},
		{
			name:      "initialism followed by lowercase",
			input:     "data from the u.s. census bureau",
			rest:      "data from the u.s. census bureau",
		},
		{
			name:      "closing quote stays with sentence",
			input:     `He said "stop." Then left.`,
			sentences: []string{`He said "stop."`, "Then left."},
		},
		{
			name:      "repeated terminators",
			input:     "Really?! Yes.",
			sentences: []string{"Really?!", "Yes."},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sentences, rest := SplitSentences(tc.input)
			require.Equal(t, tc.sentences, sentences)
			require.Equal(t, tc.rest, rest)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello world", Normalize("  hello \n\t world ", false))
	require.Equal(t, "", Normalize(" [BLANK_AUDIO] ", false))
	require.Equal(t, "When I speak I'm clearer. I think so, i.e. yes.",
		Normalize("when i speak i'm clearer. i think so, i.e. yes.", true))
	require.Equal(t, "Values near 3.5 matter. Really", Normalize("values near 3.5 matter. really", true))
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	first := Normalize("hello world. this is a lecture", true)
	require.Equal(t, first, Normalize(first, true))
}
