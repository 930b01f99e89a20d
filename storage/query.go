package storage

import (
	"strings"
	"unicode"
)

// term is one required element of a transcript query: a single word, or a
// phrase when it holds more than one word.
type term []string

// parseTerms splits a free-text query into terms. Double-quoted runs become
// phrases; everything else is split on whitespace. Words are lower-cased runs
// of letters and digits, so punctuation never reaches an index query parser.
func parseTerms(q string) []term {
	var terms []term
	for i, chunk := range strings.Split(q, `"`) {
		if i%2 == 1 {
			if words := splitWords(chunk); len(words) > 0 {
				terms = append(terms, words)
			}
			continue
		}
		for _, field := range strings.Fields(chunk) {
			if words := splitWords(field); len(words) > 0 {
				terms = append(terms, words)
			}
		}
	}
	return terms
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// ftsMatch renders terms as an SQLite FTS5 MATCH expression.
func ftsMatch(terms []term) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, `"`+strings.Join(t, " ")+`"`)
	}
	return strings.Join(parts, " ")
}

// tsQuery renders terms for Postgres to_tsquery.
func tsQuery(terms []term) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, "("+strings.Join(t, " <-> ")+")")
	}
	return strings.Join(parts, " & ")
}
