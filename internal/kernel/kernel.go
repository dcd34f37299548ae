// Package kernel orchestrates one task attempt end to end: validate the
// task, retrieve prior context, hand the task to the runner, engage
// fallback on failure, append the episode, and report the fitness trend.
//
// The kernel executes nothing itself. Task execution and recovery actions
// live behind the Runner and fallback executor boundaries; the kernel
// records what they report.
package kernel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/episode"
	"github.com/fyrsmithlabs/reflexd/internal/fallback"
	"github.com/fyrsmithlabs/reflexd/internal/fitness"
	"github.com/fyrsmithlabs/reflexd/internal/similarity"
	"github.com/fyrsmithlabs/reflexd/internal/store"
	"github.com/fyrsmithlabs/reflexd/internal/taskgraph"
)

// Runner attempts a task. Prior holds retrieved context from similar past
// episodes, when any exists. The returned reflection is recorded verbatim.
type Runner interface {
	Run(ctx context.Context, task string, prior *string) (ok bool, reflection string, err error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task string, prior *string) (bool, string, error)

func (f RunnerFunc) Run(ctx context.Context, task string, prior *string) (bool, string, error) {
	return f(ctx, task, prior)
}

// Result is the outcome of one orchestrated task attempt.
type Result struct {
	Status          episode.Result `json:"status"`
	Reflection      string         `json:"reflection"`
	FitnessScore    float64        `json:"fitness_score"`
	FitnessDelta    float64        `json:"fitness_delta"`
	ContextUsed     *string        `json:"context_used"`
	FallbackEngaged bool           `json:"fallback_engaged"`
}

// Kernel wires the reasoning components together.
type Kernel struct {
	db        *store.DB
	episodes  *episode.Store
	retriever *similarity.Retriever
	validator *taskgraph.Validator
	fallback  *fallback.Engine
	fitness   *fitness.Evaluator
	runner    Runner
	topK      int
	logger    *zap.Logger
}

// Config holds the kernel's collaborators.
type Config struct {
	DB        *store.DB
	Episodes  *episode.Store
	Retriever *similarity.Retriever
	Validator *taskgraph.Validator
	Fallback  *fallback.Engine
	Fitness   *fitness.Evaluator
	Runner    Runner
	TopK      int
}

// New creates a kernel. All collaborators are required.
func New(cfg Config, logger *zap.Logger) (*Kernel, error) {
	switch {
	case cfg.DB == nil:
		return nil, fmt.Errorf("store is required")
	case cfg.Episodes == nil:
		return nil, fmt.Errorf("episode store is required")
	case cfg.Retriever == nil:
		return nil, fmt.Errorf("retriever is required")
	case cfg.Validator == nil:
		return nil, fmt.Errorf("task graph validator is required")
	case cfg.Fallback == nil:
		return nil, fmt.Errorf("fallback engine is required")
	case cfg.Fitness == nil:
		return nil, fmt.Errorf("fitness evaluator is required")
	case cfg.Runner == nil:
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = similarity.DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kernel{
		db:        cfg.DB,
		episodes:  cfg.Episodes,
		retriever: cfg.Retriever,
		validator: cfg.Validator,
		fallback:  cfg.Fallback,
		fitness:   cfg.Fitness,
		runner:    cfg.Runner,
		topK:      cfg.TopK,
		logger:    logger,
	}, nil
}

// RunTask runs the full pipeline for a free-form task description.
func (k *Kernel) RunTask(ctx context.Context, task string) (Result, error) {
	if task == "" {
		return Result{}, episode.ErrEmptyTask
	}

	prior, err := k.retriever.Retrieve(ctx, task, k.topK)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve prior context: %w", err)
	}

	ok, reflection, runErr := k.runner.Run(ctx, task, prior.Context)
	status := episode.ResultSuccess
	switch {
	case runErr != nil:
		status = episode.ResultError
		if reflection == "" {
			reflection = runErr.Error()
		}
	case !ok:
		status = episode.ResultFailure
	}

	if _, err := k.episodes.Append(ctx, task, status, reflection); err != nil {
		return Result{}, fmt.Errorf("append episode: %w", err)
	}

	result := Result{
		Status:      status,
		Reflection:  reflection,
		ContextUsed: prior.Context,
	}

	if status != episode.ResultSuccess {
		signal := fallback.FailureSignal{
			Kind:    string(status),
			Message: reflection,
			Context: map[string]string{"task": task},
		}
		outcome, err := k.fallback.Recover(ctx, signal)
		if err != nil {
			return Result{}, fmt.Errorf("fallback: %w", err)
		}
		result.FallbackEngaged = true
		if outcome.Recovered {
			result.Status = episode.ResultSuccess
			result.Reflection = fmt.Sprintf("%s (recovered via %s)", reflection, outcome.Strategy)
		}
	}

	eval, err := k.fitness.Evaluate(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate fitness: %w", err)
	}
	result.FitnessScore = eval.Score
	result.FitnessDelta = eval.Delta

	k.logger.Info("task completed",
		zap.String("status", string(result.Status)),
		zap.Bool("fallback_engaged", result.FallbackEngaged),
		zap.Float64("fitness", result.FitnessScore),
	)
	return result, nil
}

// RunGraph validates a task graph and, when well-formed, runs it through
// the same pipeline as a text task. Schema violations propagate unchanged
// and nothing is recorded for them.
func (k *Kernel) RunGraph(ctx context.Context, g taskgraph.Graph) (Result, error) {
	if err := k.validator.Validate(g); err != nil {
		return Result{}, err
	}
	return k.RunTask(ctx, g.Text())
}

// Health reports whether the shared store is reachable.
func (k *Kernel) Health(ctx context.Context) error {
	return k.db.Ping(ctx)
}
