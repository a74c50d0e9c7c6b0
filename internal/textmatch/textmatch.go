// Package textmatch implements the lexical and fuzzy matching primitives
// the in-memory repository uses to approximate the relational
// implementation's full-text and trigram indexes without a database:
// tokenized substring matching as a stand-in for a weighted tsvector, and
// trigram-set Jaccard similarity as a stand-in for pg_trgm's similarity().
//
// There is no third-party trigram or stemming library anywhere in the
// example pack (pg_trgm is a Postgres server-side extension, not a Go
// library), so this is deliberately small and stdlib-only; see DESIGN.md.
package textmatch

import "strings"

// Similarity returns the trigram-set Jaccard similarity between a and b, in
// [0,1], approximating Postgres's pg_trgm similarity(): the whole string is
// padded once, whereas pg_trgm pads each word separately.
func Similarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func trigrams(s string) map[string]bool {
	s = "  " + strings.ToLower(strings.TrimSpace(s)) + " "
	out := map[string]bool{}
	r := []rune(s)
	for i := 0; i+3 <= len(r); i++ {
		out[string(r[i:i+3])] = true
	}
	return out
}

// ContainsAnyToken reports whether any whitespace-delimited token of query
// appears as a substring of any of haystacks, case-insensitively. This is
// the in-memory stand-in for a weighted multi-column tsvector match: it
// doesn't stem, but it tokenizes and checks every configured field, which
// is enough to satisfy the same queries the relational full-text index
// serves.
func ContainsAnyToken(query string, haystacks ...string) bool {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(tokens) == 0 {
		return false
	}
	joined := strings.ToLower(strings.Join(haystacks, " "))
	for _, tok := range tokens {
		if strings.Contains(joined, tok) {
			return true
		}
	}
	return false
}
