package matching

import "strings"

// Corporate suffixes dropped before name comparison.
var nameStopwords = map[string]struct{}{
	"ltd": {}, "inc": {}, "ag": {}, "ab": {}, "kft": {}, "sa": {},
	"limited": {}, "gmbh": {},
}

// NormalizeAlnum strips everything but letters and digits and uppercases,
// so "INV-7788" and "inv 7788" compare equal as substrings.
func NormalizeAlnum(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NameTokens lowercases, strips punctuation, and drops corporate stopwords.
func NameTokens(name string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if _, stop := nameStopwords[tok]; stop {
			continue
		}
		if len(tok) < 2 {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// NameSimilarity is the normalized token-set ratio: Jaccard index over the
// character bigrams of the stopword-filtered tokens of both names.
func NameSimilarity(a, b string) float64 {
	setA := tokenBigrams(NameTokens(a))
	setB := tokenBigrams(NameTokens(b))
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for bg := range setA {
		if _, ok := setB[bg]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenBigrams(tokens []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokens {
		if len(tok) == 1 {
			set[tok] = struct{}{}
			continue
		}
		for i := 0; i+2 <= len(tok); i++ {
			set[tok[i:i+2]] = struct{}{}
		}
	}
	return set
}

// LongestCommonAlnumSubstring returns the length of the longest common
// substring of the alphanumeric normalizations of a and b.
func LongestCommonAlnumSubstring(a, b string) int {
	na, nb := NormalizeAlnum(a), NormalizeAlnum(b)
	if na == "" || nb == "" {
		return 0
	}

	prev := make([]int, len(nb)+1)
	cur := make([]int, len(nb)+1)
	best := 0
	for i := 1; i <= len(na); i++ {
		for j := 1; j <= len(nb); j++ {
			if na[i-1] == nb[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best = cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return best
}

// DigitTokens returns the set of maximal digit runs in s.
func DigitTokens(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens[s[start:i]] = struct{}{}
			start = -1
		}
	}
	if start >= 0 {
		tokens[s[start:]] = struct{}{}
	}
	return tokens
}

// ContainsToken reports whether text contains word as a standalone token
// after splitting on non-alphanumerics. Case-insensitive.
func ContainsToken(text, word string) bool {
	word = strings.ToLower(word)
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	for _, tok := range strings.Fields(b.String()) {
		if tok == word {
			return true
		}
	}
	return false
}

// NormalizeEmbedText builds the canonical text embedded for pattern search:
// normalized description, counterparty and payment reference joined by
// single spaces. Idempotent: normalizing twice yields the same string.
func NormalizeEmbedText(description, counterparty, paymentRef string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{description, counterparty, paymentRef} {
		p = strings.Join(strings.Fields(strings.ToLower(p)), " ")
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
