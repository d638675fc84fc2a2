package store

import (
	"fmt"
	"regexp"
	"strings"
)

// parseFTS5Query converts a user query into FTS5 MATCH syntax: escapes
// special characters, preserves quoted phrases, and ANDs bare terms when
// the caller didn't supply explicit boolean operators. Grounded on the
// teacher's vectorstore/sqlite FTS5 query builder, reused verbatim for the
// chunk/symbol search surface of this package (§4.4).
func parseFTS5Query(query string) string {
	query = strings.TrimSpace(query)

	phrases := extractPhrases(query)
	for i, phrase := range phrases {
		placeholder := fmt.Sprintf("__PHRASE_%d__", i)
		query = strings.Replace(query, fmt.Sprintf(`"%s"`, phrase), placeholder, 1)
	}

	query = escapeFTS5Special(query)

	for i, phrase := range phrases {
		placeholder := fmt.Sprintf("__PHRASE_%d__", i)
		escapedPhrase := escapeFTS5Special(phrase)
		query = strings.Replace(query, placeholder, fmt.Sprintf(`"%s"`, escapedPhrase), 1)
	}

	query = normalizeOperators(query)

	if !containsExplicitOperators(query) {
		words := splitPreservingQuotes(query)
		query = strings.Join(words, " AND ")
	}

	return query
}

func extractPhrases(query string) []string {
	re := regexp.MustCompile(`"([^"]+)"`)
	matches := re.FindAllStringSubmatch(query, -1)

	phrases := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) > 1 {
			phrases = append(phrases, match[1])
		}
	}
	return phrases
}

// escapeFTS5Special escapes characters with special meaning in FTS5 MATCH
// expressions, preserving "@" for emails/identifiers.
func escapeFTS5Special(s string) string {
	replacer := strings.NewReplacer(
		`"`, `""`,
		`/`, " ",
		`(`, " ",
		`)`, " ",
		`-`, " ",
	)
	return replacer.Replace(s)
}

var booleanWordRe = regexp.MustCompile(`\b(and|or|not)\b`)

func normalizeOperators(query string) string {
	return booleanWordRe.ReplaceAllStringFunc(query, strings.ToUpper)
}

func containsExplicitOperators(query string) bool {
	return strings.Contains(query, " AND ") ||
		strings.Contains(query, " OR ") ||
		strings.Contains(query, " NOT ")
}

func splitPreservingQuotes(query string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false

	for _, r := range query {
		switch r {
		case '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case ' ':
			if inQuotes {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				tokens = append(tokens, strings.TrimSpace(current.String()))
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, strings.TrimSpace(current.String()))
	}
	return tokens
}
