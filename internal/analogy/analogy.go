// Package analogy decides whether two task graphs represent the same kind
// of problem.
//
// The judgment blends a structural term (primitive sequence alignment and
// edge topology) with a semantic term (vector similarity over the node
// parameter text, using the same vectorization as episode retrieval). The
// composite is a weighted sum, so improving either sub-score can never
// lower the final score.
package analogy

import (
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/similarity"
	"github.com/fyrsmithlabs/reflexd/internal/taskgraph"
)

// Default blend weights. Structural and semantic evidence count equally.
const (
	DefaultStructuralWeight = 0.5
	DefaultSemanticWeight   = 0.5
)

// Validator scores task graph pairs for analogy.
type Validator struct {
	structuralWeight float64
	semanticWeight   float64
	logger           *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithWeights overrides the blend weights. They are normalized to sum to 1.
func WithWeights(structural, semantic float64) Option {
	return func(v *Validator) {
		total := structural + semantic
		if total <= 0 {
			return
		}
		v.structuralWeight = structural / total
		v.semanticWeight = semantic / total
	}
}

// NewValidator creates an analogy validator.
func NewValidator(logger *zap.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{
		structuralWeight: DefaultStructuralWeight,
		semanticWeight:   DefaultSemanticWeight,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IsAnalogous reports whether the composite score of a and b meets the
// threshold. Two graphs identical in structure and parameters score 1.0 and
// therefore pass any threshold up to and including 1.0.
func (v *Validator) IsAnalogous(a, b taskgraph.Graph, threshold float64) bool {
	score := v.Score(a, b)
	v.logger.Debug("analogy scored",
		zap.Float64("score", score),
		zap.Float64("threshold", threshold),
	)
	return score >= threshold
}

// Score returns the composite analogy score in [0,1].
func (v *Validator) Score(a, b taskgraph.Graph) float64 {
	return v.structuralWeight*StructuralScore(a, b) + v.semanticWeight*SemanticScore(a, b)
}

// StructuralScore compares graph shape: 0.6 weight on the alignment of the
// primitive sequences, 0.4 on the degree profile of the edge topology.
// Identical graphs score exactly 1.
func StructuralScore(a, b taskgraph.Graph) float64 {
	return 0.6*sequenceScore(a.Primitives(), b.Primitives()) + 0.4*topologyScore(a, b)
}

// SemanticScore compares the node parameter text of the two graphs under a
// TF-IDF vectorization fitted on just that pair. Identical text scores
// exactly 1.
func SemanticScore(a, b taskgraph.Graph) float64 {
	textA, textB := a.Text(), b.Text()
	if textA == textB {
		return 1
	}
	if textA == "" || textB == "" {
		return 0
	}
	model := similarity.Fit([]string{textA, textB})
	return similarity.Cosine(model.Transform(textA), model.Transform(textB))
}

// sequenceScore is the normalized longest-common-subsequence ratio of the
// two primitive sequences: 2*LCS / (len(a)+len(b)).
func sequenceScore(a, b []taskgraph.Primitive) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Standard DP over two rows.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(b)]
	return 2 * float64(lcs) / float64(len(a)+len(b))
}

// topologyScore compares the multisets of (in-degree, out-degree) node
// profiles: 2*overlap / (nodes(a)+nodes(b)).
func topologyScore(a, b taskgraph.Graph) float64 {
	if len(a.Nodes) == 0 && len(b.Nodes) == 0 {
		return 1
	}
	if len(a.Nodes) == 0 || len(b.Nodes) == 0 {
		return 0
	}

	profA := degreeProfile(a)
	profB := degreeProfile(b)

	var overlap int
	for deg, count := range profA {
		if other, ok := profB[deg]; ok {
			if other < count {
				overlap += other
			} else {
				overlap += count
			}
		}
	}
	return 2 * float64(overlap) / float64(len(a.Nodes)+len(b.Nodes))
}

type degrees struct {
	in, out int
}

func degreeProfile(g taskgraph.Graph) map[degrees]int {
	in := make(map[string]int, len(g.Nodes))
	out := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		out[e.From]++
		in[e.To]++
	}
	profile := make(map[degrees]int, len(g.Nodes))
	for _, n := range g.Nodes {
		profile[degrees{in: in[n.ID], out: out[n.ID]}]++
	}
	return profile
}
