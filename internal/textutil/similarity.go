package textutil

import "strings"

// MinSuggestScore is the similarity below which Suggest gives up.
const MinSuggestScore = 0.3

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for gram, count := range a.grams {
		if other, ok := b.grams[gram]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// Suggest returns the candidate most similar to name, or false when none
// scores at least MinSuggestScore. Ties keep the earlier candidate. An exact
// case-insensitive match always wins.
func Suggest(name string, candidates []string) (string, bool) {
	target := NewFingerprint(name)
	best, bestScore := "", 0.0
	for _, c := range candidates {
		if strings.EqualFold(strings.TrimSpace(name), c) {
			return c, true
		}
		if score := CosineSimilarity(target, NewFingerprint(c)); score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < MinSuggestScore {
		return "", false
	}
	return best, true
}
