package similarity

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/reflexd/internal/episode"
)

// Match is a single nearest-neighbor hit.
type Match struct {
	// EpisodeID identifies the matched episode.
	EpisodeID int64

	// Similarity is the cosine similarity to the query, in [0,1].
	Similarity float64
}

// Index is a nearest-neighbor index over a fixed episode corpus.
//
// Build one with NewIndex whenever the corpus may have changed; an Index
// never observes appends made after construction.
type Index struct {
	model *Model
	col   *chromem.Collection
	count int
}

// NewIndex fits the TF-IDF model on the episodes and loads their vectors
// into an in-memory chromem collection.
func NewIndex(ctx context.Context, episodes []episode.Episode) (*Index, error) {
	corpus := make([]string, len(episodes))
	for i, e := range episodes {
		corpus[i] = e.Text()
	}
	model := Fit(corpus)

	db := chromem.NewDB()
	col, err := db.CreateCollection("episodes", nil, func(_ context.Context, text string) ([]float32, error) {
		return model.Transform(text), nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating index collection: %w", err)
	}

	// An episode whose text yields no usable terms has a zero vector. It
	// can never score above zero similarity, and chromem's norm division
	// would turn the zero embedding into NaN, so it stays out of the
	// collection.
	docs := make([]chromem.Document, 0, len(episodes))
	for _, e := range episodes {
		vec := model.Transform(e.Text())
		if IsZero(vec) {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        strconv.FormatInt(e.ID, 10),
			Content:   e.Text(),
			Metadata:  map[string]string{"result": string(e.Result)},
			Embedding: vec,
		})
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("loading index documents: %w", err)
		}
	}

	return &Index{model: model, col: col, count: len(docs)}, nil
}

// Size returns the number of indexed episodes. Episodes with no usable
// terms are not indexed and do not count.
func (ix *Index) Size() int {
	return ix.count
}

// Vector returns the query's vector under the index's model.
func (ix *Index) Vector(text string) []float32 {
	return ix.model.Transform(text)
}

// Query returns the k most similar episodes, highest similarity first.
// Ties are broken by recency: the higher episode id wins.
//
// A query sharing no vocabulary with the corpus matches nothing and returns
// an empty slice.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 || ix.count == 0 {
		return []Match{}, nil
	}
	if IsZero(ix.model.Transform(text)) {
		return []Match{}, nil
	}

	// Fetch the whole corpus so tie-breaking is under our control, then
	// truncate. Corpus sizes here are small; full scan is the documented
	// cost of the non-incremental design.
	results, err := ix.col.Query(ctx, text, ix.count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed index document id %q: %w", r.ID, err)
		}
		matches = append(matches, Match{EpisodeID: id, Similarity: float64(r.Similarity)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].EpisodeID > matches[j].EpisodeID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
