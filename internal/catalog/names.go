package catalog

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nameSuffixes are trailing tokens ignored when comparing author names.
var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "phd": true, "md": true,
}

var leadingArticles = []string{"the ", "a ", "an "}

// FoldTitle is the case-insensitive form used for exact title equality.
func FoldTitle(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// NormalizeName reduces an author name to lowercase ASCII-ish tokens with
// diacritics, punctuation and generational suffixes removed.
func NormalizeName(s string) string {
	tokens := tokenize(s)
	for len(tokens) > 1 && nameSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// NormalizeTitle reduces a title for containment matching: diacritics and
// case folded, separators collapsed, one leading article dropped.
func NormalizeTitle(s string) string {
	t := strings.Join(tokenize(s), " ")
	for _, article := range leadingArticles {
		if strings.HasPrefix(t, article) && len(t) > len(article) {
			return t[len(article):]
		}
	}
	return t
}

// NamesOverlap reports whether two author names plausibly denote the same
// person: one normalized name contains the other on token boundaries.
func NamesOverlap(a, b string) bool {
	if isUnknownAuthor(a) || isUnknownAuthor(b) {
		return false
	}
	return containsTokens(NormalizeName(a), NormalizeName(b))
}

// TitlesContain reports whether one normalized title contains the other.
// The shorter title must be at least minLen runes long.
func TitlesContain(a, b string, minLen int) bool {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if min(utf8.RuneCountInString(na), utf8.RuneCountInString(nb)) < max(minLen, 1) {
		return false
	}
	return containsTokens(na, nb)
}

// SameTitle is case-insensitive exact title equality.
func SameTitle(a, b string) bool {
	return FoldTitle(a) == FoldTitle(b)
}

func containsTokens(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	pa, pb := " "+a+" ", " "+b+" "
	return strings.Contains(pa, pb) || strings.Contains(pb, pa)
}

func isUnknownAuthor(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), UnknownAuthor)
}

// tokenize folds s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	folded := stripDiacritics(s)
	folded = cases.Fold().String(folded)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// authorsOverlap reports whether any real author in have overlaps any in want.
func authorsOverlap(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if NamesOverlap(h, w) {
				return true
			}
		}
	}
	return false
}

// containsAllAuthors reports whether every name in want appears in have,
// compared case-insensitively.
func containsAllAuthors(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	folded := make(map[string]bool, len(have))
	for _, h := range have {
		folded[cases.Fold().String(strings.TrimSpace(h))] = true
	}
	for _, w := range want {
		if !folded[cases.Fold().String(strings.TrimSpace(w))] {
			return false
		}
	}
	return true
}

// cleanNames trims names, drops blanks and the unknown-author placeholder,
// and removes case-insensitive duplicates while keeping order.
func cleanNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || isUnknownAuthor(n) {
			continue
		}
		key := cases.Fold().String(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
