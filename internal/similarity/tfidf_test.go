package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	terms := Tokenize("Fix the Login bug!")

	assert.Contains(t, terms, "fix")
	assert.Contains(t, terms, "login")
	assert.Contains(t, terms, "bug")
	// Stopwords are dropped.
	assert.NotContains(t, terms, "the")
	// Character n-grams of longer words are emitted.
	assert.Contains(t, terms, "log")
	assert.Contains(t, terms, "ogin")
}

func TestTokenize_SharedGramsAcrossVariants(t *testing.T) {
	a := Tokenize("auth")
	b := Tokenize("authentication")

	set := make(map[string]struct{}, len(b))
	for _, term := range b {
		set[term] = struct{}{}
	}

	var shared int
	for _, term := range a {
		if _, ok := set[term]; ok {
			shared++
		}
	}
	assert.Greater(t, shared, 0, "morphological variants should share terms")
}

func TestFitTransform_Normalized(t *testing.T) {
	m := Fit([]string{"fix login bug", "update user profile", "debug auth timeout"})
	require.Greater(t, m.Dimension(), 0)

	vec := m.Transform("fix login bug")
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-6)
}

func TestTransform_UnknownTermsYieldZeroVector(t *testing.T) {
	m := Fit([]string{"fix login bug"})
	vec := m.Transform("zzz qqq")
	assert.True(t, IsZero(vec))
}

func TestCosine_SelfSimilarityIsOne(t *testing.T) {
	m := Fit([]string{"fix login bug", "update user profile"})
	vec := m.Transform("fix login bug")
	assert.InDelta(t, 1.0, Cosine(vec, vec), 1e-6)
}

func TestCosine_OrthogonalIsZero(t *testing.T) {
	m := Fit([]string{"alpha", "omega"})
	a := m.Transform("alpha")
	b := m.Transform("omega")
	assert.InDelta(t, 0.0, Cosine(a, b), 1e-6)
}

func TestCosine_RelatedAboveUnrelated(t *testing.T) {
	corpus := []string{
		"fix login bug resolved auth",
		"update profile added fields",
		"debug auth fixed timeout",
	}
	m := Fit(corpus)

	query := m.Transform("authentication problem")
	authSim := Cosine(query, m.Transform(corpus[2]))
	profileSim := Cosine(query, m.Transform(corpus[1]))

	assert.Greater(t, authSim, profileSim)
	assert.False(t, math.IsNaN(authSim))
}
