package pattern

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90

	// minWordLen keeps short function words ("the", "a", "it") out of the
	// correction pass.
	minWordLen = 4
)

// matcher finds the vocabulary keyword that sounds most like a word.
//
// Candidates whose Double Metaphone codes overlap the word's are ranked by
// Jaro-Winkler similarity and accepted above phoneticThreshold. Without any
// phonetic overlap, pure Jaro-Winkler must reach fuzzyThreshold.
type matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

func newMatcher() *matcher {
	return &matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
}

func (m *matcher) match(word string, vocab []string) (string, float64, bool) {
	word = strings.ToLower(word)
	codes := metaphoneCodes(word)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, kw := range vocab {
		score := matchr.JaroWinkler(word, kw, false)
		if overlaps(codes, metaphoneCodes(kw)) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = kw, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = kw, score
		}
	}
	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// metaphoneCodes returns the non-empty primary and secondary Double Metaphone
// codes of w.
func metaphoneCodes(w string) []string {
	p, s := matchr.DoubleMetaphone(w)
	var out []string
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
