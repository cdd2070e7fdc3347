package features

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	markupTags   = regexp.MustCompile(`<[^>]*>`)
	htmlEntities = regexp.MustCompile(`&#?[a-zA-Z0-9]+;`)
)

// Normalize lowercases a document and replaces markup and punctuation
// with spaces so tokenization reduces to whitespace splitting.
func Normalize(doc string) string {
	s := strings.ToLower(doc)
	s = markupTags.ReplaceAllString(s, " ")
	s = htmlEntities.ReplaceAllString(s, " ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// Tokenize normalizes a document and splits it into tokens, dropping
// stopwords. Single characters left over from punctuation stripping are
// noise and are dropped too.
func Tokenize(doc string) []string {
	fields := strings.Fields(Normalize(doc))
	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len(tok) < 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
