// Package fitness reduces recent episode outcomes to a scalar trend metric.
//
// The score is an exponentially weighted moving average of the success
// ratio over a recent episode window, so one new failure shifts the score
// smoothly instead of discontinuously. The evaluator keeps the previous
// score to report a signed delta alongside each evaluation.
package fitness

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/episode"
)

const (
	// DefaultWindow is the number of recent episodes considered.
	DefaultWindow = 10
	// DefaultAlpha is the smoothing factor: the share of the new window
	// ratio in the updated score.
	DefaultAlpha = 0.3
	// initialScore seeds the average before any episode exists.
	initialScore = 0.5
)

// Evaluation is one fitness reading.
type Evaluation struct {
	Score    float64 `json:"score"`
	Previous float64 `json:"previous"`
	Delta    float64 `json:"delta"`
	Window   int     `json:"window"`
}

// Evaluator computes fitness over the episode store.
type Evaluator struct {
	episodes *episode.Store
	window   int
	alpha    float64
	logger   *zap.Logger

	mu    sync.Mutex
	score float64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithWindow overrides the episode window size. Non-positive values are
// ignored.
func WithWindow(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithAlpha overrides the smoothing factor. Values outside (0,1] are
// ignored.
func WithAlpha(alpha float64) Option {
	return func(e *Evaluator) {
		if alpha > 0 && alpha <= 1 {
			e.alpha = alpha
		}
	}
}

// NewEvaluator creates a fitness evaluator.
func NewEvaluator(episodes *episode.Store, logger *zap.Logger, opts ...Option) (*Evaluator, error) {
	if episodes == nil {
		return nil, fmt.Errorf("episode store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		episodes: episodes,
		window:   DefaultWindow,
		alpha:    DefaultAlpha,
		logger:   logger,
		score:    initialScore,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate reads the recent window and folds its success ratio into the
// running score. With no episodes the score is unchanged and the delta is
// zero.
func (e *Evaluator) Evaluate(ctx context.Context) (Evaluation, error) {
	recent, err := e.episodes.Recent(ctx, e.window)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate fitness: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.score
	if len(recent) > 0 {
		var successes int
		for _, ep := range recent {
			if ep.Result == episode.ResultSuccess {
				successes++
			}
		}
		ratio := float64(successes) / float64(len(recent))
		e.score = e.alpha*ratio + (1-e.alpha)*previous
	}

	eval := Evaluation{
		Score:    e.score,
		Previous: previous,
		Delta:    e.score - previous,
		Window:   len(recent),
	}
	e.logger.Debug("fitness evaluated",
		zap.Float64("score", eval.Score),
		zap.Float64("delta", eval.Delta),
		zap.Int("window", eval.Window),
	)
	return eval, nil
}

// Score returns the current score without re-evaluating.
func (e *Evaluator) Score() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}
