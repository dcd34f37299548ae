// Package fallback turns a failure signal into a recovery attempt.
//
// Each failure runs the same pipeline: diagnose the signal into an error
// category, generate the category's candidate strategies, score them
// against the strategy ledger with an epsilon-greedy exploration term, then
// execute candidates in descending score order until one recovers. Every
// attempt is written back to the ledger and the episode store, including
// the ones that failed. An exhausted fallback is a normal outcome, not an
// error.
package fallback

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/episode"
	"github.com/fyrsmithlabs/reflexd/internal/strategy"
)

// DefaultEpsilon is the default exploration share in candidate scoring.
const DefaultEpsilon = 0.2

// Category is the diagnosed class of a failure.
type Category string

const (
	CategoryTimeout    Category = "timeout"
	CategoryNotFound   Category = "not_found"
	CategoryPermission Category = "permission"
	CategoryNetwork    Category = "network"
	CategoryValidation Category = "validation"
	CategoryGeneric    Category = "generic"
)

// FailureSignal is an explicit description of a failure event. It replaces
// passing live error values around so the pipeline can be driven and tested
// without anything actually failing.
type FailureSignal struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// Diagnosis is the classified form of a failure signal.
type Diagnosis struct {
	Category Category `json:"category"`
	Signal   string   `json:"signal"`
}

// Candidate strategies per category. Order is declaration order and doubles
// as the tie-break order during selection.
var candidateTable = map[Category][]string{
	CategoryTimeout:    {"retry-with-backoff", "extend-timeout", "split-task"},
	CategoryNotFound:   {"broaden-search", "rebuild-index", "alternate-source"},
	CategoryPermission: {"reauthenticate", "narrow-scope", "escalate"},
	CategoryNetwork:    {"retry-with-backoff", "alternate-endpoint", "reduce-payload"},
	CategoryValidation: {"normalize-input", "split-task", "relax-constraint"},
	CategoryGeneric:    {"retry-with-backoff", "simplify-task", "alternate-approach"},
}

// Executor performs the actual recovery action for a strategy. The engine
// only consumes the reported outcome.
type Executor interface {
	Execute(ctx context.Context, strategyName string, signal FailureSignal) bool
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, strategyName string, signal FailureSignal) bool

func (f ExecutorFunc) Execute(ctx context.Context, strategyName string, signal FailureSignal) bool {
	return f(ctx, strategyName, signal)
}

// ScoredCandidate is a strategy with its predicted success probability.
type ScoredCandidate struct {
	Strategy    string  `json:"strategy"`
	Probability float64 `json:"probability"`
}

// Attempt records one executed candidate and its outcome.
type Attempt struct {
	Strategy    string  `json:"strategy"`
	Probability float64 `json:"probability"`
	Recovered   bool    `json:"recovered"`
}

// Outcome is the result of a full fallback run. Exhausted means every
// candidate was tried and none recovered.
type Outcome struct {
	Recovered bool      `json:"recovered"`
	Strategy  string    `json:"strategy,omitempty"`
	Category  Category  `json:"category"`
	Exhausted bool      `json:"exhausted"`
	Attempts  []Attempt `json:"attempts"`
}

// Engine drives the fallback pipeline.
type Engine struct {
	ledger   *strategy.Ledger
	episodes *episode.Store
	executor Executor
	epsilon  float64
	rng      *rand.Rand
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEpsilon overrides the exploration share. Values outside [0,1] are
// ignored.
func WithEpsilon(epsilon float64) Option {
	return func(e *Engine) {
		if epsilon >= 0 && epsilon <= 1 {
			e.epsilon = epsilon
		}
	}
}

// WithRand injects the random source used for exploration, so callers can
// seed it for reproducible selection.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// NewEngine creates a fallback engine.
func NewEngine(ledger *strategy.Ledger, episodes *episode.Store, executor Executor, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("strategy ledger is required")
	}
	if episodes == nil {
		return nil, fmt.Errorf("episode store is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		ledger:   ledger,
		episodes: episodes,
		executor: executor,
		epsilon:  DefaultEpsilon,
		rng:      rand.New(rand.NewSource(rand.Int63())),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Diagnose classifies a failure signal. It never fails: an unrecognized
// kind maps to the generic category.
func Diagnose(signal FailureSignal) Diagnosis {
	text := strings.ToLower(signal.Kind + " " + signal.Message)

	category := CategoryGeneric
	switch {
	case containsAny(text, "timeout", "timed out", "deadline"):
		category = CategoryTimeout
	case containsAny(text, "not found", "missing", "no such", "404"):
		category = CategoryNotFound
	case containsAny(text, "permission", "denied", "forbidden", "unauthorized", "401", "403"):
		category = CategoryPermission
	case containsAny(text, "network", "connection", "refused", "unreachable", "dns"):
		category = CategoryNetwork
	case containsAny(text, "invalid", "malformed", "validation", "schema"):
		category = CategoryValidation
	}

	sig := signal.Kind
	if signal.Message != "" {
		sig += ": " + signal.Message
	}
	return Diagnosis{Category: category, Signal: sig}
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// Candidates returns the strategy list for a diagnosis. The list is
// non-empty and deterministic given the diagnosis.
func Candidates(d Diagnosis) []string {
	if names, ok := candidateTable[d.Category]; ok {
		return append([]string(nil), names...)
	}
	return append([]string(nil), candidateTable[CategoryGeneric]...)
}

// Score predicts a success probability per candidate: the ledger weight,
// blended with a uniform draw from the engine's random source weighted by
// epsilon. Untried strategies keep a non-zero chance through both terms.
func (e *Engine) Score(ctx context.Context, candidates []string) ([]ScoredCandidate, error) {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, name := range candidates {
		weight, err := e.ledger.Weight(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("score candidate %q: %w", name, err)
		}
		scored = append(scored, ScoredCandidate{
			Strategy:    name,
			Probability: (1-e.epsilon)*weight + e.epsilon*e.rng.Float64(),
		})
	}
	return scored, nil
}

// Select orders candidates by descending probability, ties broken by
// declaration order.
func Select(scored []ScoredCandidate) []ScoredCandidate {
	ordered := append([]ScoredCandidate(nil), scored...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Probability > ordered[j].Probability
	})
	return ordered
}

// Recover runs the full pipeline for one failure signal. Candidates are
// executed best-first until one recovers; every attempt is recorded in the
// ledger and the episode store regardless of outcome. If no candidate
// recovers the outcome is marked exhausted, which is not an error.
func (e *Engine) Recover(ctx context.Context, signal FailureSignal) (Outcome, error) {
	diagnosis := Diagnose(signal)
	scored, err := e.Score(ctx, Candidates(diagnosis))
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Category: diagnosis.Category, Attempts: []Attempt{}}
	for _, candidate := range Select(scored) {
		recovered := e.executor.Execute(ctx, candidate.Strategy, signal)
		if err := e.record(ctx, candidate.Strategy, diagnosis, recovered); err != nil {
			return Outcome{}, err
		}
		outcome.Attempts = append(outcome.Attempts, Attempt{
			Strategy:    candidate.Strategy,
			Probability: candidate.Probability,
			Recovered:   recovered,
		})
		if recovered {
			outcome.Recovered = true
			outcome.Strategy = candidate.Strategy
			e.logger.Info("fallback recovered",
				zap.String("strategy", candidate.Strategy),
				zap.String("category", string(diagnosis.Category)),
			)
			return outcome, nil
		}
	}

	outcome.Exhausted = true
	e.logger.Warn("fallback exhausted",
		zap.String("category", string(diagnosis.Category)),
		zap.Int("attempts", len(outcome.Attempts)),
	)
	return outcome, nil
}

func (e *Engine) record(ctx context.Context, strategyName string, d Diagnosis, recovered bool) error {
	if err := e.ledger.Record(ctx, strategyName, recovered); err != nil {
		return err
	}

	result := episode.ResultFailure
	reflection := fmt.Sprintf("strategy %s did not recover %s", strategyName, d.Signal)
	if recovered {
		result = episode.ResultSuccess
		reflection = fmt.Sprintf("strategy %s recovered %s", strategyName, d.Signal)
	}
	_, err := e.episodes.Append(ctx, "fallback: "+d.Signal, result, reflection)
	return err
}
