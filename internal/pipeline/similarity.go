package pipeline

import "strings"

// similarityThreshold is the token-overlap ratio at or above which two
// requirement titles count as the same requirement.
const similarityThreshold = 0.70

// titleTokens lowercases a title, strips everything outside [a-z0-9\s]
// and splits the remainder into word tokens. Stripped characters are
// removed, not replaced, so "sign-on" tokenizes as "signon".
func titleTokens(title string) map[string]struct{} {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\t', r == '\n':
			b.WriteRune(r)
		}
	}
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(b.String()) {
		tokens[field] = struct{}{}
	}
	return tokens
}

// titleSimilarity returns the share of the smaller title's tokens that
// also appear in the larger one. Ratio against the smaller set means a
// short title fully contained in a longer one scores 1.0.
func titleSimilarity(a, b string) float64 {
	ta := titleTokens(a)
	tb := titleTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	small, large := ta, tb
	if len(tb) < len(ta) {
		small, large = tb, ta
	}
	shared := 0
	for token := range small {
		if _, ok := large[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

// isDuplicateTitle reports whether a candidate title is a near-duplicate
// of any existing title.
func isDuplicateTitle(candidate string, existing []string) bool {
	for _, title := range existing {
		if titleSimilarity(candidate, title) >= similarityThreshold {
			return true
		}
	}
	return false
}
