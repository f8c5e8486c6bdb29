// Package assembler turns a stream of recognizer results into exactly one
// outbound utterance per spoken turn.
package assembler

import "strings"

// Merge combines accumulated final text with trailing interim text.
//
// Whitespace is normalized first. When the interim text is already a
// trailing run of words of the final text, or the final text is a leading
// run of words of the interim text, the overlap is not repeated; otherwise
// the two are joined by a single space. Overlaps only count on word
// boundaries, so "I" and "Italy" stay two words.
func Merge(final, interim string) string {
	final = NormalizeSpace(final)
	interim = NormalizeSpace(interim)
	switch {
	case interim == "":
		return final
	case final == "":
		return interim
	case final == interim, strings.HasSuffix(final, " "+interim):
		return final
	case strings.HasPrefix(interim, final+" "):
		return interim
	}
	return final + " " + interim
}

// NormalizeSpace trims s and collapses every run of whitespace to one space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
