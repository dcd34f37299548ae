package similarity

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/episode"
	"github.com/fyrsmithlabs/reflexd/internal/store"
)

func newFixture(t *testing.T) (*episode.Store, *Retriever) {
	t.Helper()
	db, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	episodes, err := episode.NewStore(db, zap.NewNop())
	require.NoError(t, err)

	retriever, err := NewRetriever(episodes, zap.NewNop())
	require.NoError(t, err)
	return episodes, retriever
}

func TestNewRetriever_RequiresStore(t *testing.T) {
	_, err := NewRetriever(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "episode store cannot be nil")
}

func TestRetrieve_EmptyStore(t *testing.T) {
	_, retriever := newFixture(t)

	result, err := retriever.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Nil(t, result.Context)
	assert.Empty(t, result.Similar)
}

func TestRetrieve_SingleEpisodeIsExactlyOne(t *testing.T) {
	episodes, retriever := newFixture(t)
	ctx := context.Background()

	_, err := episodes.Append(ctx, "deploy service", episode.ResultSuccess, "rolled out cleanly")
	require.NoError(t, err)

	result, err := retriever.Retrieve(ctx, "completely unrelated query", 5)
	require.NoError(t, err)
	require.Len(t, result.Similar, 1)
	assert.Equal(t, 1.0, result.Similar[0].Similarity)
	require.NotNil(t, result.Context)
	assert.Equal(t, "rolled out cleanly", *result.Context)
}

func TestRetrieve_RanksRelatedEpisodesFirst(t *testing.T) {
	episodes, retriever := newFixture(t)
	ctx := context.Background()

	_, err := episodes.Append(ctx, "fix login bug", episode.ResultSuccess, "resolved auth")
	require.NoError(t, err)
	_, err = episodes.Append(ctx, "update profile", episode.ResultSuccess, "added fields")
	require.NoError(t, err)
	_, err = episodes.Append(ctx, "debug auth", episode.ResultSuccess, "fixed timeout")
	require.NoError(t, err)

	result, err := retriever.Retrieve(ctx, "authentication problem", 2)
	require.NoError(t, err)
	require.Len(t, result.Similar, 2)

	got := []string{result.Similar[0].Episode.Task, result.Similar[1].Episode.Task}
	assert.ElementsMatch(t, []string{"fix login bug", "debug auth"}, got)
	require.NotNil(t, result.Context)
	assert.Equal(t, result.Similar[0].Episode.Reflection, *result.Context)
}

func TestRetrieve_NoVocabularyOverlapFindsNothing(t *testing.T) {
	episodes, retriever := newFixture(t)
	ctx := context.Background()

	_, err := episodes.Append(ctx, "fix login bug", episode.ResultSuccess, "resolved auth")
	require.NoError(t, err)
	_, err = episodes.Append(ctx, "update profile", episode.ResultSuccess, "added fields")
	require.NoError(t, err)

	result, err := retriever.Retrieve(ctx, "zzz qqq xyzzy", 5)
	require.NoError(t, err)
	assert.Nil(t, result.Context)
	assert.Empty(t, result.Similar)
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	episodes, retriever := newFixture(t)
	ctx := context.Background()

	for i := 0; i < DefaultTopK+3; i++ {
		_, err := episodes.Append(ctx, "repeated maintenance task", episode.ResultSuccess, "done")
		require.NoError(t, err)
	}

	result, err := retriever.Retrieve(ctx, "repeated maintenance task", 0)
	require.NoError(t, err)
	assert.Len(t, result.Similar, DefaultTopK)
}

func TestRetrieve_AllStopwordEpisodeIsExcluded(t *testing.T) {
	episodes, retriever := newFixture(t)
	ctx := context.Background()

	_, err := episodes.Append(ctx, "fix login bug", episode.ResultSuccess, "resolved auth")
	require.NoError(t, err)
	_, err = episodes.Append(ctx, "it was to be", episode.ResultFailure, "")
	require.NoError(t, err)
	_, err = episodes.Append(ctx, "debug auth", episode.ResultSuccess, "fixed timeout")
	require.NoError(t, err)

	result, err := retriever.Retrieve(ctx, "authentication login auth", 5)
	require.NoError(t, err)
	require.NotEmpty(t, result.Similar)

	for _, s := range result.Similar {
		assert.False(t, math.IsNaN(s.Similarity), "episode %d has NaN similarity", s.Episode.ID)
		assert.NotEqual(t, "it was to be", s.Episode.Task)
	}

	// The result must stay encodable for CLI output.
	_, err = json.Marshal(result)
	require.NoError(t, err)
}

func TestNewIndex_SkipsZeroVectorEpisodes(t *testing.T) {
	ctx := context.Background()
	eps := []episode.Episode{
		{ID: 1, Task: "fix login bug", Reflection: "resolved auth"},
		{ID: 2, Task: "it was to be", Reflection: ""},
	}

	index, err := NewIndex(ctx, eps)
	require.NoError(t, err)
	assert.Equal(t, 1, index.Size())

	matches, err := index.Query(ctx, "login", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].EpisodeID)
}

func TestIndexQuery_TieBreakPrefersRecent(t *testing.T) {
	ctx := context.Background()
	eps := []episode.Episode{
		{ID: 1, Task: "restart worker pool", Reflection: "ok"},
		{ID: 2, Task: "restart worker pool", Reflection: "ok"},
		{ID: 3, Task: "rotate credentials", Reflection: "done"},
	}

	index, err := NewIndex(ctx, eps)
	require.NoError(t, err)

	matches, err := index.Query(ctx, "restart worker pool", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// Episodes 1 and 2 are identical; the more recent one wins the tie.
	assert.Equal(t, int64(2), matches[0].EpisodeID)
	assert.Equal(t, int64(1), matches[1].EpisodeID)
}
