package kernel

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reflexd/internal/episode"
	"github.com/fyrsmithlabs/reflexd/internal/fallback"
	"github.com/fyrsmithlabs/reflexd/internal/fitness"
	"github.com/fyrsmithlabs/reflexd/internal/similarity"
	"github.com/fyrsmithlabs/reflexd/internal/store"
	"github.com/fyrsmithlabs/reflexd/internal/strategy"
	"github.com/fyrsmithlabs/reflexd/internal/taskgraph"
)

type fixture struct {
	kernel   *Kernel
	episodes *episode.Store
}

func newFixture(t *testing.T, runner Runner, exec fallback.Executor) *fixture {
	t.Helper()
	db, err := store.Open(store.Config{
		Path: filepath.Join(t.TempDir(), "reflexd.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	episodes, err := episode.NewStore(db, nil)
	require.NoError(t, err)
	retriever, err := similarity.NewRetriever(episodes, nil)
	require.NoError(t, err)
	ledger, err := strategy.NewLedger(db, nil)
	require.NoError(t, err)
	if exec == nil {
		exec = fallback.ExecutorFunc(func(context.Context, string, fallback.FailureSignal) bool {
			return false
		})
	}
	engine, err := fallback.NewEngine(ledger, episodes, exec, nil,
		fallback.WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	evaluator, err := fitness.NewEvaluator(episodes, nil)
	require.NoError(t, err)

	k, err := New(Config{
		DB:        db,
		Episodes:  episodes,
		Retriever: retriever,
		Validator: taskgraph.NewValidator(),
		Fallback:  engine,
		Fitness:   evaluator,
		Runner:    runner,
	}, nil)
	require.NoError(t, err)
	return &fixture{kernel: k, episodes: episodes}
}

func succeedingRunner(reflection string) Runner {
	return RunnerFunc(func(context.Context, string, *string) (bool, string, error) {
		return true, reflection, nil
	})
}

func TestRunTaskSuccess(t *testing.T) {
	f := newFixture(t, succeedingRunner("resolved cleanly"), nil)
	ctx := context.Background()

	result, err := f.kernel.RunTask(ctx, "fix login bug")
	require.NoError(t, err)
	assert.Equal(t, episode.ResultSuccess, result.Status)
	assert.Equal(t, "resolved cleanly", result.Reflection)
	assert.False(t, result.FallbackEngaged)
	assert.Nil(t, result.ContextUsed)
	assert.Greater(t, result.FitnessScore, 0.5)

	recent, err := f.episodes.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fix login bug", recent[0].Task)
}

func TestRunTaskUsesPriorContext(t *testing.T) {
	var seen *string
	runner := RunnerFunc(func(_ context.Context, _ string, prior *string) (bool, string, error) {
		seen = prior
		return true, "done", nil
	})
	f := newFixture(t, runner, nil)
	ctx := context.Background()

	_, err := f.episodes.Append(ctx, "debug auth", episode.ResultSuccess, "fixed token expiry")
	require.NoError(t, err)

	result, err := f.kernel.RunTask(ctx, "debug auth again")
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "fixed token expiry", *seen)
	require.NotNil(t, result.ContextUsed)
	assert.Equal(t, "fixed token expiry", *result.ContextUsed)
}

func TestRunTaskFailureEngagesFallback(t *testing.T) {
	runner := RunnerFunc(func(context.Context, string, *string) (bool, string, error) {
		return false, "selector timed out", nil
	})
	exec := fallback.ExecutorFunc(func(_ context.Context, strategyName string, _ fallback.FailureSignal) bool {
		return strategyName == "retry-with-backoff"
	})
	f := newFixture(t, runner, exec)

	result, err := f.kernel.RunTask(context.Background(), "scrape listing page")
	require.NoError(t, err)
	assert.True(t, result.FallbackEngaged)
	assert.Equal(t, episode.ResultSuccess, result.Status)
	assert.Contains(t, result.Reflection, "recovered via retry-with-backoff")
}

func TestRunTaskExhaustedFallbackStaysFailed(t *testing.T) {
	runner := RunnerFunc(func(context.Context, string, *string) (bool, string, error) {
		return false, "element never appeared", nil
	})
	f := newFixture(t, runner, nil)

	result, err := f.kernel.RunTask(context.Background(), "click checkout")
	require.NoError(t, err)
	assert.True(t, result.FallbackEngaged)
	assert.Equal(t, episode.ResultFailure, result.Status)
}

func TestRunTaskRunnerErrorIsRecorded(t *testing.T) {
	runner := RunnerFunc(func(context.Context, string, *string) (bool, string, error) {
		return false, "", errors.New("browser crashed")
	})
	f := newFixture(t, runner, nil)
	ctx := context.Background()

	result, err := f.kernel.RunTask(ctx, "load dashboard")
	require.NoError(t, err)
	assert.True(t, result.FallbackEngaged)
	assert.Equal(t, "browser crashed", result.Reflection)

	// First appended episode is the task attempt itself.
	all, err := f.episodes.All(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, episode.ResultError, all[0].Result)
}

func TestRunTaskRejectsEmptyTask(t *testing.T) {
	f := newFixture(t, succeedingRunner("ok"), nil)

	_, err := f.kernel.RunTask(context.Background(), "")
	assert.ErrorIs(t, err, episode.ErrEmptyTask)
}

func TestRunGraphValidatesFirst(t *testing.T) {
	f := newFixture(t, succeedingRunner("ok"), nil)
	ctx := context.Background()

	bad := taskgraph.Graph{
		Nodes: []taskgraph.Node{{ID: "a", Primitive: taskgraph.PrimitiveLocate}},
		Edges: []taskgraph.Edge{{From: "a", To: "ghost"}},
	}
	_, err := f.kernel.RunGraph(ctx, bad)
	var schemaErr *taskgraph.SchemaError
	require.ErrorAs(t, err, &schemaErr)

	// Nothing was recorded for the rejected graph.
	all, err := f.episodes.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	good := taskgraph.Graph{
		Nodes: []taskgraph.Node{
			{ID: "a", Primitive: taskgraph.PrimitiveLocate, Params: map[string]string{"target": "form"}},
			{ID: "b", Primitive: taskgraph.PrimitiveExecute, Params: map[string]string{"action": "submit"}},
		},
		Edges: []taskgraph.Edge{{From: "a", To: "b"}},
	}
	result, err := f.kernel.RunGraph(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, episode.ResultSuccess, result.Status)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, succeedingRunner("ok"), nil)
	assert.NoError(t, f.kernel.Health(context.Background()))
}
