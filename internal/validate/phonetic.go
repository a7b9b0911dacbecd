package validate

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// MatcherOption is a functional option for configuring a [Matcher].
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched candidate to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher corrects transcription noise in department and doctor names using
// Double Metaphone phonetic codes filtered through Jaro-Winkler similarity.
// Phone audio mangles proper nouns constantly ("Doctor Shah" arrives as
// "doctor sha" or "doctor shaw"), so exact matching alone loses too many
// callers.
//
// Matching runs in two stages: candidates whose Double Metaphone codes
// overlap the input are ranked by Jaro-Winkler and accepted above the
// phonetic threshold; if no candidate overlaps phonetically, a pure
// similarity pass runs with the stricter fuzzy threshold.
//
// Multi-word candidates ("General Medicine", "Dr. Anita Desai") are handled
// by comparing per-token codes and taking the best pairwise score. A Matcher
// is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a [Matcher] configured with the supplied options.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the candidate most phonetically similar to word. word may be a
// single token or a space-separated phrase. When matched is false, corrected
// equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, candidates []string) (corrected string, confidence float64, matched bool) {
	if len(candidates) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type scored struct {
		value    string
		score    float64
		phonetic bool
	}
	var best scored

	for _, cand := range candidates {
		candLower := strings.ToLower(strings.TrimSpace(cand))
		if candLower == "" {
			continue
		}
		candTokens := strings.Fields(candLower)

		phonetic := codesOverlap(inputCodes, codesForTokens(candTokens))
		jw := bestSimilarity(wordTokens, candTokens, wordLower, candLower)

		if phonetic {
			if jw >= m.phoneticThreshold && (!best.phonetic || jw > best.score) {
				best = scored{value: cand, score: jw, phonetic: true}
			}
		} else if !best.phonetic && jw >= m.fuzzyThreshold && jw > best.score {
			best = scored{value: cand, score: jw, phonetic: false}
		}
	}

	if best.value != "" {
		return best.value, best.score, true
	}
	return word, 0, false
}

// codesForTokens returns the union of Double Metaphone codes for the tokens.
// Empty codes (words too short or without consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity takes the highest Jaro-Winkler score across full strings,
// space-stripped strings, and all token pairs. The token-pair pass is what
// lets "doctor mehta" land on "Dr. Rajiv Mehta".
func bestSimilarity(inputTokens, candTokens []string, inputFull, candFull string) float64 {
	score := matchr.JaroWinkler(inputFull, candFull, false)

	if len(inputTokens) > 1 || len(candTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(candTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, ct := range candTokens {
			if s := matchr.JaroWinkler(it, ct, false); s > score {
				score = s
			}
		}
	}

	return score
}
