package playback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"travelvoice/settings"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "heading", input: "## Dzień 1\nStare Miasto", expected: "Dzień 1\nStare Miasto"},
		{name: "bold and italic", input: "To **bardzo** *ładne* miejsce", expected: "To bardzo ładne miejsce"},
		{name: "link", input: "See [the museum](https://example.com) first", expected: "See the museum first"},
		{name: "code fence", input: "Before\n```\nrm -rf\n```\nAfter", expected: "Before\n\nAfter"},
		{name: "inline code", input: "Use `Bolt` app", expected: "Use Bolt app"},
		{name: "bullets", input: "- Wawel\n* Sukiennice\n  + Kazimierz", expected: "Wawel\nSukiennice\nKazimierz"},
		{name: "numbered", input: "1. Rano\n2. Wieczór", expected: "Rano\nWieczór"},
		{name: "blank lines collapsed", input: "a\n\n\n\nb", expected: "a\n\nb"},
		{name: "emoji removed", input: "Miłej podróży! ✈️🌍", expected: "Miłej podróży!"},
		{name: "table", input: "| Dzień | Plan |\n|---|---|\n| 1 | Wawel |", expected: "Dzień, Plan\n\n1, Wawel"},
		{name: "strikethrough", input: "~~drogo~~ tanio", expected: "drogo tanio"},
		{name: "trimmed", input: "   hello  world  ", expected: "hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_PlainTextUnchanged(t *testing.T) {
	word := rapid.StringMatching(`[A-Za-zżółćęśąźń]{1,8}`)
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(word, 1, 12).Draw(rt, "words")
		text := strings.Join(words, " ") + "."
		assert.Equal(rt, text, Normalize(text))
	})
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name     string
		lang     settings.Language
		input    string
		expected []string
	}{
		{
			name:     "basic",
			lang:     settings.English,
			input:    "Lisbon is great. Stay in Alfama! Want more?",
			expected: []string{"Lisbon is great.", "Stay in Alfama!", "Want more?"},
		},
		{
			name:     "polish abbreviation",
			lang:     settings.Polish,
			input:    "Zobacz np. Wawel. Potem idź ul. Floriańską do Rynku.",
			expected: []string{"Zobacz np. Wawel.", "Potem idź ul. Floriańską do Rynku."},
		},
		{
			name:     "english abbreviation",
			lang:     settings.English,
			input:    "Ask Dr. Smith. He knows.",
			expected: []string{"Ask Dr. Smith.", "He knows."},
		},
		{
			name:     "lowercase continuation",
			lang:     settings.Polish,
			input:    "Wyjazd 12. maja rano. Powrót wieczorem.",
			expected: []string{"Wyjazd 12. maja rano.", "Powrót wieczorem."},
		},
		{
			name:     "decimal",
			lang:     settings.English,
			input:    "It costs 3.50 euro. Cheap.",
			expected: []string{"It costs 3.50 euro.", "Cheap."},
		},
		{
			name:     "quotes",
			lang:     settings.English,
			input:    `He said "go." Then left.`,
			expected: []string{`He said "go."`, "Then left."},
		},
		{
			name:     "lines",
			lang:     settings.Polish,
			input:    "Dzień 1\n\nWawel i Rynek",
			expected: []string{"Dzień 1", "Wawel i Rynek"},
		},
		{
			name:     "empty",
			lang:     settings.English,
			input:    "  \n ",
			expected: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitSentences(tt.input, tt.lang))
		})
	}
}

func TestSplitSentences_CoversAllWords(t *testing.T) {
	token := rapid.SampledFrom([]string{"Rzym", "jest", "piękny.", "Tak!", "np.", "dni?", "3.", "\n", "Mr.", "ok", "…", "\"Go.\""})
	rapid.Check(t, func(rt *rapid.T) {
		tokens := rapid.SliceOfN(token, 0, 20).Draw(rt, "tokens")
		text := strings.Join(tokens, " ")
		lang := rapid.SampledFrom([]settings.Language{settings.Polish, settings.English}).Draw(rt, "lang")

		segments := SplitSentences(text, lang)
		for _, s := range segments {
			assert.NotEmpty(rt, strings.TrimSpace(s))
		}
		assert.Equal(rt, strings.Join(strings.Fields(text), " "), strings.Join(segments, " "))
	})
}
