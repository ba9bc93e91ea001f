package textutil

import (
	"math"
	"regexp"
	"strings"
)

var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Vector is a term-frequency vector for text similarity comparison.
type Vector struct {
	terms map[string]float64
	norm  float64
}

// NewVector builds a vector from text. Returns nil if no tokens remain.
func NewVector(text string) *Vector {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &Vector{terms: counts, norm: math.Sqrt(norm)}
}

// Tokenize splits text into lowercase tokens of two or more characters.
func Tokenize(text string) []string {
	raw := tokenSplitPattern.Split(strings.ToLower(text), -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len(token) < 2 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// Len returns the number of unique terms.
func (v *Vector) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// Similarity returns the cosine similarity of a and b in [0, 1].
func Similarity(a, b *Vector) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for term, count := range a.terms {
		if other, ok := b.terms[term]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return math.Min(1, dot/(a.norm*b.norm))
}

// Coverage returns the fraction of b's terms that also appear in a. It rewards
// a file name that contains every word of a short category name even when the
// name carries many extra tokens.
func Coverage(a, b *Vector) float64 {
	if a == nil || b == nil || len(b.terms) == 0 {
		return 0
	}
	hits := 0
	for term := range b.terms {
		if _, ok := a.terms[term]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(b.terms))
}
