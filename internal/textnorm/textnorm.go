// Package textnorm holds the single whitespace/punctuation normalization
// table applied consistently by both internal/ebook and internal/fuzzy, so
// that ASR-style punctuation substitutions (curly quotes, em-dashes) never
// change a match score just because one side normalized differently than
// the other.
package textnorm

import "strings"

// punctuationFolds maps punctuation ASR transcripts commonly drop or
// substitute to a single canonical form (or to nothing).
var punctuationFolds = strings.NewReplacer(
	"‘", "", // left single quote
	"’", "", // right single quote
	"'", "",
	"“", "", // left double quote
	"”", "", // right double quote
	"—", "-", // em dash
	"–", "-", // en dash
	"…", "...", // ellipsis
	",", "",
	".", "",
	";", "",
	":", "",
	"\"", "",
	"!", "",
	"?", "",
	"(", "",
	")", "",
)

// Normalize lowercases s, folds ASR-ambiguous punctuation, and collapses
// runs of whitespace to a single space. Used for matching only; callers
// keep the original text for display.
func Normalize(s string) string {
	folded := punctuationFolds.Replace(strings.ToLower(s))
	fields := strings.Fields(folded)
	return strings.Join(fields, " ")
}
