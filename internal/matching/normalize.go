package matching

import (
	"regexp"
	"strings"
)

type abbreviation struct {
	pattern *regexp.Regexp
	full    string
}

var abbreviations = []abbreviation{
	{regexp.MustCompile(`\bGM\b`), "GRAM"},
	{regexp.MustCompile(`\bKG\b`), "KILOGRAM"},
	{regexp.MustCompile(`\bLB\b`), "POUND"},
	{regexp.MustCompile(`\bOZ\b`), "OUNCE"},
	{regexp.MustCompile(`\bPKT\b`), "PACKET"},
	{regexp.MustCompile(`\bPCS\b`), "PIECES"},
	{regexp.MustCompile(`\bVEG\b`), "VEGETABLE"},
	{regexp.MustCompile(`\bLTR\b`), "LITRE"},
	{regexp.MustCompile(`\bG\b`), "GRAM"},
	{regexp.MustCompile(`\bML\b`), "MILLILITRE"},
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9\s]`)

// Normalize upper-cases name, expands standalone unit and packaging
// abbreviations, turns punctuation into spaces and collapses whitespace.
func Normalize(name string) string {
	normalized := strings.ToUpper(name)
	for _, abbr := range abbreviations {
		normalized = abbr.pattern.ReplaceAllString(normalized, abbr.full)
	}
	normalized = nonAlnum.ReplaceAllString(normalized, " ")
	return strings.Join(strings.Fields(normalized), " ")
}

// stripPunctuation upper-cases s and drops non-alphanumerics without
// inserting spaces.
func stripPunctuation(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(s), "")
}
