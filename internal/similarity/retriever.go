package similarity

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/episode"
)

const instrumentationName = "github.com/fyrsmithlabs/reflexd/internal/similarity"

// DefaultTopK is the number of similar episodes returned when the caller
// does not specify one.
const DefaultTopK = 5

// ScoredEpisode pairs an episode with its similarity to a query.
type ScoredEpisode struct {
	Episode    episode.Episode `json:"episode"`
	Similarity float64         `json:"similarity"`
}

// Result is the outcome of a retrieval. Finding nothing is a normal result:
// Context is nil and Similar is empty, never an error.
type Result struct {
	// Context is the reflection of the most similar episode, or nil when
	// the store is empty or nothing matched.
	Context *string `json:"context"`

	// Similar holds the matched episodes, highest similarity first.
	Similar []ScoredEpisode `json:"similar_episodes"`
}

// Retriever answers "what happened last time something like this was
// attempted" by rebuilding the similarity index over the current corpus and
// querying it.
type Retriever struct {
	episodes *episode.Store
	logger   *zap.Logger
}

// NewRetriever creates a retrieval service over the episode store.
func NewRetriever(episodes *episode.Store, logger *zap.Logger) (*Retriever, error) {
	if episodes == nil {
		return nil, fmt.Errorf("episode store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{episodes: episodes, logger: logger}, nil
}

// Retrieve returns the topK episodes most similar to query.
//
// Cold start on an empty store yields a nil context and an empty slice. A
// single-episode store returns that episode with similarity exactly 1.0:
// the sole document is trivially identical to itself under a one-document
// vectorization.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) (*Result, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "similarity.retrieve")
	defer span.End()

	if topK <= 0 {
		topK = DefaultTopK
	}
	span.SetAttributes(attribute.Int("top_k", topK))

	all, err := r.episodes.All(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("loading corpus: %w", err)
	}

	switch len(all) {
	case 0:
		return &Result{Context: nil, Similar: []ScoredEpisode{}}, nil
	case 1:
		only := all[0]
		reflection := only.Reflection
		return &Result{
			Context: &reflection,
			Similar: []ScoredEpisode{{Episode: only, Similarity: 1.0}},
		}, nil
	}

	index, err := NewIndex(ctx, all)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("building index: %w", err)
	}

	matches, err := index.Query(ctx, query, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying index: %w", err)
	}

	byID := make(map[int64]episode.Episode, len(all))
	for _, e := range all {
		byID[e.ID] = e
	}

	result := &Result{Similar: make([]ScoredEpisode, 0, len(matches))}
	for _, m := range matches {
		e, ok := byID[m.EpisodeID]
		if !ok {
			continue
		}
		result.Similar = append(result.Similar, ScoredEpisode{Episode: e, Similarity: m.Similarity})
	}
	if len(result.Similar) > 0 {
		reflection := result.Similar[0].Episode.Reflection
		result.Context = &reflection
	}

	r.logger.Debug("retrieval completed",
		zap.String("query", query),
		zap.Int("corpus_size", len(all)),
		zap.Int("matches", len(result.Similar)),
	)
	span.SetAttributes(attribute.Int("matches", len(result.Similar)))
	return result, nil
}
