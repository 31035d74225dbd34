// Package search turns free-text queries and user-supplied tags into the
// normalized terms used by recipe listing and storage.
//
// Tokenization is Unicode-aware: a term is a run of letters optionally
// followed by digits, case-folded with golang.org/x/text/cases so that
// matching does not depend on the caller's capitalization. Stop words are
// dropped from queries, duplicates removed, and the original order kept.
package search

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxTerms caps the number of terms taken from a single query.
const MaxTerms = 8

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

var folder = cases.Fold()

// stopwords are ignored in queries; a query made only of stop words yields no
// terms and therefore no text filter.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "with": {}, "for": {},
	"in": {}, "on": {}, "to": {}, "or": {}, "my": {}, "recipe": {}, "recipes": {},
}

// Fold normalizes s to NFC and case-folds it.
func Fold(s string) string {
	return folder.String(norm.NFC.String(s))
}

// Document builds the folded text a recipe's search terms are matched
// against: title, description and tags separated by spaces.
func Document(title, description string, tags []string) string {
	parts := make([]string, 0, len(tags)+2)
	parts = append(parts, title, description)
	parts = append(parts, tags...)
	return Fold(strings.Join(parts, " "))
}

// Tokenize extracts up to MaxTerms distinct, case-folded terms from q,
// skipping stop words.
func Tokenize(q string) []string {
	words := wordRE.FindAllString(Fold(q), -1)
	if len(words) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == MaxTerms {
			break
		}
	}
	return out
}

// NormalizeTags trims, collapses inner whitespace and case-folds tags, then
// removes blanks and duplicates while keeping first-seen order. Tags have set
// semantics on a recipe.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.Join(strings.Fields(Fold(t)), " ")
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
