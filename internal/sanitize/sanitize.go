// Package sanitize cleans model-generated text before it is stored or placed
// into another persona's feed. Bios, reactions and revised campaign copy all
// come back from an inference provider and are later pasted verbatim into
// prompts, so markup that could pose as feed structure or instructions is
// stripped while the wording is kept.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxContentLength is the maximum allowed length for multi-line text such as
// bios and campaign copy.
const MaxContentLength = 2000

// MaxReactionLength is the maximum allowed length for a single reaction.
const MaxReactionLength = 280

// MaxNameLength is the maximum allowed length for persona names.
const MaxNameLength = 60

// rewrite is one regexp substitution in the SanitizeText pipeline.
type rewrite struct {
	re   *regexp.Regexp
	with string
}

// textRules run in order after control characters are dropped.
var textRules = []rewrite{
	// Tags, attributes, self-closing tags and <?xml ...?> instructions.
	{regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`), ""},
	// Headings would read as feed structure; keep the words as a list item.
	{regexp.MustCompile(`(?m)^#{1,6}\s+`), "- "},
	// === banners delimit feed sections.
	{regexp.MustCompile(`={3,}`), ""},
	{regexp.MustCompile("```+"), "`"},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// SanitizeText cleans multi-line text: control characters other than
// newline and tab are dropped, markup is stripped by textRules, and the
// result is trimmed and cut to MaxContentLength.
func SanitizeText(input string) string {
	s := strings.Map(dropControl, input)
	for _, r := range textRules {
		s = r.re.ReplaceAllString(s, r.with)
	}
	return truncate(strings.TrimSpace(s), MaxContentLength)
}

// SanitizeReaction cleans a comment or mock so it fits on one feed line.
func SanitizeReaction(input string) string {
	s := SanitizeText(input)
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	return truncate(s, MaxReactionLength)
}

// SanitizeName keeps letters, digits, spaces and the punctuation that shows
// up in real names (. ' -), collapsing runs of whitespace.
func SanitizeName(input string) string {
	s := strings.Join(strings.Fields(strings.Map(nameRune, input)), " ")
	if r := []rune(s); len(r) > MaxNameLength {
		s = strings.TrimSpace(string(r[:MaxNameLength]))
	}
	return s
}

func nameRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '\'', r == '-':
		return r
	case unicode.IsSpace(r):
		return ' '
	}
	return -1
}

// truncate cuts s to at most max runes, appending an ellipsis when it does.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}

func dropControl(r rune) rune {
	if r < 0x20 && r != '\n' && r != '\t' {
		return -1
	}
	return r
}
