package fallback

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reflexd/internal/episode"
	"github.com/fyrsmithlabs/reflexd/internal/store"
	"github.com/fyrsmithlabs/reflexd/internal/strategy"
)

type scriptedExecutor struct {
	succeed map[string]bool
	calls   []string
}

func (s *scriptedExecutor) Execute(_ context.Context, strategyName string, _ FailureSignal) bool {
	s.calls = append(s.calls, strategyName)
	return s.succeed[strategyName]
}

func newTestEngine(t *testing.T, exec Executor, opts ...Option) (*Engine, *strategy.Ledger, *episode.Store) {
	t.Helper()
	db, err := store.Open(store.Config{
		Path: filepath.Join(t.TempDir(), "reflexd.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ledger, err := strategy.NewLedger(db, nil)
	require.NoError(t, err)
	episodes, err := episode.NewStore(db, nil)
	require.NoError(t, err)

	engine, err := NewEngine(ledger, episodes, exec, nil, opts...)
	require.NoError(t, err)
	return engine, ledger, episodes
}

func TestDiagnoseCategories(t *testing.T) {
	cases := []struct {
		signal FailureSignal
		want   Category
	}{
		{FailureSignal{Kind: "TimeoutError", Message: "request timed out"}, CategoryTimeout},
		{FailureSignal{Kind: "http", Message: "404 not found"}, CategoryNotFound},
		{FailureSignal{Kind: "http", Message: "403 forbidden"}, CategoryPermission},
		{FailureSignal{Kind: "net", Message: "connection refused"}, CategoryNetwork},
		{FailureSignal{Kind: "parse", Message: "malformed payload"}, CategoryValidation},
		{FailureSignal{Kind: "SomethingNovel", Message: "no idea"}, CategoryGeneric},
		{FailureSignal{}, CategoryGeneric},
	}
	for _, tc := range cases {
		d := Diagnose(tc.signal)
		assert.Equal(t, tc.want, d.Category, "signal %+v", tc.signal)
	}
}

func TestCandidatesDeterministicAndNonEmpty(t *testing.T) {
	for _, category := range []Category{
		CategoryTimeout, CategoryNotFound, CategoryPermission,
		CategoryNetwork, CategoryValidation, CategoryGeneric,
	} {
		d := Diagnosis{Category: category}
		first := Candidates(d)
		require.NotEmpty(t, first, "category %s", category)
		assert.Equal(t, first, Candidates(d), "category %s", category)
	}

	// Unknown categories fall back to the generic table.
	assert.Equal(t, Candidates(Diagnosis{Category: CategoryGeneric}),
		Candidates(Diagnosis{Category: Category("martian")}))
}

func TestSelectBreaksTiesByDeclarationOrder(t *testing.T) {
	scored := []ScoredCandidate{
		{Strategy: "first", Probability: 0.5},
		{Strategy: "second", Probability: 0.5},
		{Strategy: "third", Probability: 0.7},
	}
	ordered := Select(scored)
	require.Len(t, ordered, 3)
	assert.Equal(t, "third", ordered[0].Strategy)
	assert.Equal(t, "first", ordered[1].Strategy)
	assert.Equal(t, "second", ordered[2].Strategy)
}

func TestSeededScoringIsDeterministic(t *testing.T) {
	exec := &scriptedExecutor{}
	candidates := []string{"retry-with-backoff", "extend-timeout", "split-task"}

	engineA, _, _ := newTestEngine(t, exec, WithRand(rand.New(rand.NewSource(42))))
	engineB, _, _ := newTestEngine(t, exec, WithRand(rand.New(rand.NewSource(42))))

	scoredA, err := engineA.Score(context.Background(), candidates)
	require.NoError(t, err)
	scoredB, err := engineB.Score(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, scoredA, scoredB)
}

func TestLearnedWeightDominatesSelection(t *testing.T) {
	exec := &scriptedExecutor{succeed: map[string]bool{"extend-timeout": true}}
	engine, ledger, _ := newTestEngine(t, exec,
		WithEpsilon(0), WithRand(rand.New(rand.NewSource(1))))
	ctx := context.Background()

	// Build a history that makes extend-timeout the clear winner.
	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.Record(ctx, "extend-timeout", true))
		require.NoError(t, ledger.Record(ctx, "retry-with-backoff", false))
	}

	outcome, err := engine.Recover(ctx, FailureSignal{Kind: "TimeoutError", Message: "deadline exceeded"})
	require.NoError(t, err)
	assert.True(t, outcome.Recovered)
	assert.Equal(t, "extend-timeout", outcome.Strategy)
	assert.Equal(t, "extend-timeout", exec.calls[0])
	assert.Len(t, outcome.Attempts, 1)
}

func TestExhaustedFallbackIsAnOutcomeNotAnError(t *testing.T) {
	exec := &scriptedExecutor{}
	engine, ledger, episodes := newTestEngine(t, exec,
		WithRand(rand.New(rand.NewSource(7))))
	ctx := context.Background()

	outcome, err := engine.Recover(ctx, FailureSignal{Kind: "net", Message: "connection refused"})
	require.NoError(t, err)
	assert.True(t, outcome.Exhausted)
	assert.False(t, outcome.Recovered)
	assert.Empty(t, outcome.Strategy)
	assert.Len(t, outcome.Attempts, 3)

	// Failures are data: each attempt left a ledger row and an episode.
	entries, err := ledger.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, int64(1), e.Uses)
		assert.Equal(t, int64(0), e.Successes)
	}

	recent, err := episodes.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	for _, ep := range recent {
		assert.Equal(t, episode.ResultFailure, ep.Result)
	}
}

func TestRecoveryStopsAfterFirstSuccess(t *testing.T) {
	exec := &scriptedExecutor{succeed: map[string]bool{"rebuild-index": true}}
	engine, _, episodes := newTestEngine(t, exec,
		WithEpsilon(0), WithRand(rand.New(rand.NewSource(3))))
	ctx := context.Background()

	outcome, err := engine.Recover(ctx, FailureSignal{Kind: "lookup", Message: "record not found"})
	require.NoError(t, err)
	assert.True(t, outcome.Recovered)
	assert.Equal(t, "rebuild-index", outcome.Strategy)

	recent, err := episodes.Recent(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, episode.ResultSuccess, recent[0].Result)
}
