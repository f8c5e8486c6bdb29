package playback

import (
	"regexp"
	"strings"
)

var (
	codeFenceRegex    = regexp.MustCompile("(?s)```.*?```")
	headingRegex      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	bulletRegex       = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numberedRegex     = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	tableRuleRegex    = regexp.MustCompile(`(?m)^[ \t]*\|?[ \t]*:?-{3,}:?[ \t]*(\|[ \t]*:?-{3,}:?[ \t]*)*\|?[ \t]*$`)
	tableRowRegex     = regexp.MustCompile(`(?m)^[ \t]*\|(.*)\|[ \t]*$`)
	boldRegex         = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRegex    = regexp.MustCompile(`__(.+?)__`)
	italicRegex       = regexp.MustCompile(`\*(.+?)\*`)
	strikeRegex       = regexp.MustCompile(`~~(.+?)~~`)
	linkRegex         = regexp.MustCompile(`\[(.+?)\]\((.+?)\)`)
	inlineCodeRegex   = regexp.MustCompile("`(.+?)`")
	emojiRegex        = regexp.MustCompile(`[\p{So}\x{FE0F}\x{200D}]`)
	blankLinesRegex   = regexp.MustCompile(`\n{3,}`)
	spacesRegex       = regexp.MustCompile(`[ \t]+`)
	spaceNewlineRegex = regexp.MustCompile(`[ \t]*\n[ \t]*`)
)

// Normalize strips markdown structure from a reply so that formatting
// characters are never read aloud. Paragraph breaks survive as newlines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = codeFenceRegex.ReplaceAllString(text, "")
	text = headingRegex.ReplaceAllString(text, "")
	text = bulletRegex.ReplaceAllString(text, "")
	text = numberedRegex.ReplaceAllString(text, "")
	text = tableRuleRegex.ReplaceAllString(text, "")
	text = tableRowRegex.ReplaceAllStringFunc(text, tableRow)
	text = boldRegex.ReplaceAllString(text, "$1")
	text = boldUnderRegex.ReplaceAllString(text, "$1")
	text = italicRegex.ReplaceAllString(text, "$1")
	text = strikeRegex.ReplaceAllString(text, "$1")
	text = linkRegex.ReplaceAllString(text, "$1")
	text = inlineCodeRegex.ReplaceAllString(text, "$1")
	text = emojiRegex.ReplaceAllString(text, "")
	text = spacesRegex.ReplaceAllString(text, " ")
	text = spaceNewlineRegex.ReplaceAllString(text, "\n")
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// tableRow reads a markdown table row as a comma separated line.
func tableRow(row string) string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	cells := strings.Split(row, "|")
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, ", ")
}
