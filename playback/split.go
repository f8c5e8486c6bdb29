package playback

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"travelvoice/settings"
)

// Abbreviations that end in a period without ending the sentence.
var abbreviations = map[settings.Language]map[string]bool{
	settings.Polish:  set("np", "m.in", "tj", "tzw", "ok", "godz", "ul", "al", "nr", "dr", "prof", "mgr", "inż", "św", "pn", "pd", "wsch", "zach", "tel", "min", "maks", "ds", "jw", "b.d", "r", "w", "zob", "por"),
	settings.English: set("mr", "mrs", "ms", "dr", "prof", "st", "vs", "e.g", "i.e", "approx", "no", "jr", "sr", "mt", "ave", "rd", "dept", "est", "min", "max"),
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// SplitSentences cuts normalized text into sentences for segment-by-segment
// synthesis. Line breaks always end a segment. Whitespace inside a segment
// is collapsed, so joining the result with single spaces gives back the
// input's words in order.
func SplitSentences(text string, lang settings.Language) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		words := strings.Fields(line)
		start := 0
		for i := 0; i < len(words)-1; i++ {
			if endsSentence(words[i], words[i+1], lang) {
				out = append(out, strings.Join(words[start:i+1], " "))
				start = i + 1
			}
		}
		if start < len(words) {
			out = append(out, strings.Join(words[start:], " "))
		}
	}
	return out
}

func endsSentence(word, next string, lang settings.Language) bool {
	trimmed := strings.TrimRight(word, `"'”’»)]`)
	if trimmed == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case '!', '?', '…':
		return true
	case '.':
	default:
		return false
	}

	stem := strings.ToLower(strings.TrimRight(trimmed, "."))
	stem = strings.TrimLeft(stem, `"'„“«([`)
	if abbreviations[lang][stem] {
		return false
	}
	// Initials such as "J." and ordinals such as "3." in dates.
	if utf8.RuneCountInString(stem) == 1 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(strings.TrimLeft(next, `"'„“«([`))
	return !unicode.IsLower(first)
}
