// Package strategy persists per-strategy outcome counters and derives
// success-rate weights from them. Counters only ever grow; the weight of a
// strategy that has never been tried is a neutral 0.5 so new strategies are
// neither favored nor starved.
package strategy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/store"
)

var (
	// ErrEmptyStrategy is returned when a strategy name is blank.
	ErrEmptyStrategy = errors.New("strategy name is empty")
)

// NeutralWeight is the weight reported for strategies with no recorded uses.
const NeutralWeight = 0.5

// Entry is one row of the ledger.
type Entry struct {
	Strategy  string    `json:"strategy"`
	Uses      int64     `json:"uses"`
	Successes int64     `json:"successes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Weight is the observed success rate of the entry, or NeutralWeight when
// the strategy has never been used.
func (e Entry) Weight() float64 {
	if e.Uses == 0 {
		return NeutralWeight
	}
	return float64(e.Successes) / float64(e.Uses)
}

// Ledger reads and updates strategy weights backed by the store.
type Ledger struct {
	db     *store.DB
	logger *zap.Logger
}

// NewLedger creates a ledger over db.
func NewLedger(db *store.DB, logger *zap.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger}, nil
}

// Record adds one use of the strategy, counting it as a success when
// success is true. The row is created on first use.
func (l *Ledger) Record(ctx context.Context, strategy string, success bool) error {
	if strategy == "" {
		return ErrEmptyStrategy
	}

	win := 0
	if success {
		win = 1
	}
	err := l.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO strategy_weights (strategy, uses, successes, updated_at)
			VALUES (?, 1, ?, ?)
			ON CONFLICT(strategy) DO UPDATE SET
				uses = uses + 1,
				successes = successes + excluded.successes,
				updated_at = excluded.updated_at`,
			strategy, win, time.Now().UTC().UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record strategy outcome: %w", err)
	}

	l.logger.Debug("strategy outcome recorded",
		zap.String("strategy", strategy),
		zap.Bool("success", success),
	)
	return nil
}

// Weight returns the current weight of the strategy. Unknown strategies
// report NeutralWeight.
func (l *Ledger) Weight(ctx context.Context, strategy string) (float64, error) {
	if strategy == "" {
		return 0, ErrEmptyStrategy
	}

	var uses, successes int64
	err := l.db.Reader().QueryRowContext(ctx,
		`SELECT uses, successes FROM strategy_weights WHERE strategy = ?`,
		strategy,
	).Scan(&uses, &successes)
	if errors.Is(err, sql.ErrNoRows) {
		return NeutralWeight, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query strategy weight: %w", err)
	}
	return Entry{Uses: uses, Successes: successes}.Weight(), nil
}

// List returns all ledger entries ordered by descending weight, ties broken
// by strategy name.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.Reader().QueryContext(ctx, `
		SELECT strategy, uses, successes, updated_at
		FROM strategy_weights
		ORDER BY CAST(successes AS REAL) / uses DESC, strategy ASC`)
	if err != nil {
		return nil, fmt.Errorf("query strategy ledger: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var updated int64
		if err := rows.Scan(&e.Strategy, &e.Uses, &e.Successes, &updated); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(updated).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
