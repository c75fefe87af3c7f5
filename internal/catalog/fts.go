package catalog

import "strings"

// ftsQuote prepares a user pattern for an FTS5 MATCH: each word is quoted
// for literal matching with implicit AND, and a trailing * makes the last
// word a prefix query so partial titles match while typing.
func ftsQuote(pattern string) string {
	words := strings.Fields(pattern)
	if len(words) == 0 {
		return `""`
	}
	quoted := make([]string, len(words))
	for i, word := range words {
		escaped := strings.ReplaceAll(word, `"`, `""`)
		quoted[i] = `"` + escaped + `"`
	}
	quoted[len(quoted)-1] += "*"
	return strings.Join(quoted, " ")
}
