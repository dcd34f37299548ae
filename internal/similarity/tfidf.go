package similarity

import (
	"math"
	"strings"
	"unicode"
)

// stopwords is a compact English stopword list; matches the terms the
// vectorizer drops before weighting.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "no": {}, "not": {},
	"of": {}, "on": {}, "or": {}, "she": {}, "so": {}, "such": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "to": {}, "was": {}, "we": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "who": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

const (
	minGram = 3
	maxGram = 4
)

// Words splits text into lowercase word tokens, dropping stopwords and
// single-character tokens.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) < 2 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		words = append(words, w)
	}
	return words
}

// Tokenize splits text into lowercase word tokens and per-word character
// n-grams. Stopwords and single-character tokens are dropped.
func Tokenize(text string) []string {
	var terms []string
	for _, w := range Words(text) {
		terms = append(terms, w)
		for n := minGram; n <= maxGram; n++ {
			if len(w) <= n {
				break
			}
			for i := 0; i+n <= len(w); i++ {
				terms = append(terms, w[i:i+n])
			}
		}
	}
	return terms
}

// Model is a TF-IDF vectorizer fitted on a fixed corpus. It is immutable
// after Fit; a corpus change requires a refit.
type Model struct {
	vocab map[string]int
	idf   []float32
}

// Fit builds a vectorizer over the given corpus.
//
// IDF uses the smoothed form ln((1+N)/(1+df)) + 1 so terms present in every
// document still carry weight, and term frequency is raw count. Transform
// output is L2-normalized, which makes the dot product of two vectors their
// cosine similarity.
func Fit(corpus []string) *Model {
	m := &Model{vocab: make(map[string]int)}

	df := []int{}
	for _, doc := range corpus {
		seen := make(map[int]struct{})
		for _, term := range Tokenize(doc) {
			idx, ok := m.vocab[term]
			if !ok {
				idx = len(m.vocab)
				m.vocab[term] = idx
				df = append(df, 0)
			}
			if _, dup := seen[idx]; !dup {
				df[idx]++
				seen[idx] = struct{}{}
			}
		}
	}

	n := float64(len(corpus))
	m.idf = make([]float32, len(df))
	for i, d := range df {
		m.idf[i] = float32(math.Log((1+n)/(1+float64(d))) + 1)
	}
	return m
}

// Dimension returns the vector dimension (vocabulary size).
func (m *Model) Dimension() int {
	return len(m.vocab)
}

// Transform vectorizes text against the fitted vocabulary. Terms outside the
// vocabulary are ignored. The result is L2-normalized; a text with no known
// terms yields the zero vector.
func (m *Model) Transform(text string) []float32 {
	vec := make([]float32, len(m.vocab))
	for _, term := range Tokenize(text) {
		if idx, ok := m.vocab[term]; ok {
			vec[idx] += m.idf[idx]
		}
	}
	normalize(vec)
	return vec
}

// Cosine returns the cosine similarity of two L2-normalized vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// IsZero reports whether vec has no non-zero component.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
