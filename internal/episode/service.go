// Package episode provides the append-only episodic memory log.
package episode

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/reflexd/internal/episode"

// Store persists episodes in the shared SQLite database.
//
// Appends are atomic and durable before returning; they go through the
// store's exclusive write transaction. Reads never observe a partial row.
type Store struct {
	db     *store.DB
	logger *zap.Logger

	appendCounter metric.Int64Counter
}

// NewStore creates an episode store on top of the shared database.
func NewStore(db *store.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{db: db, logger: logger}

	meter := otel.Meter(instrumentationName)
	var err error
	s.appendCounter, err = meter.Int64Counter(
		"reflexd.episodes.appended_total",
		metric.WithDescription("Total number of episodes appended"),
		metric.WithUnit("{episode}"),
	)
	if err != nil {
		s.logger.Warn("failed to create append counter", zap.Error(err))
	}

	return s, nil
}

// Append records a new episode and returns its id.
func (s *Store) Append(ctx context.Context, task string, result Result, reflection string) (int64, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "episode.append")
	defer span.End()

	if strings.TrimSpace(task) == "" {
		return 0, ErrEmptyTask
	}
	if !result.Valid() {
		return 0, ErrInvalidResult
	}

	var id int64
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO episodes (created_at, task, result, reflection) VALUES (?, ?, ?, ?)",
			time.Now().UTC().UnixMilli(), task, string(result), reflection,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("appending episode: %w", err)
	}

	if s.appendCounter != nil {
		s.appendCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("result", string(result)),
		))
	}

	s.logger.Debug("episode appended",
		zap.Int64("id", id),
		zap.String("result", string(result)),
	)
	span.SetAttributes(attribute.Int64("episode_id", id))
	return id, nil
}

// Recent returns up to limit episodes, most recent first. A non-positive
// limit or an empty store yields an empty slice, not an error.
func (s *Store) Recent(ctx context.Context, limit int) ([]Episode, error) {
	if limit <= 0 {
		return []Episode{}, nil
	}

	rows, err := s.db.Reader().QueryContext(ctx,
		"SELECT id, created_at, task, result, reflection FROM episodes ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// All returns every episode in insertion order. The similarity index and the
// consolidation engine rebuild from the full corpus, so they read it all.
func (s *Store) All(ctx context.Context) ([]Episode, error) {
	rows, err := s.db.Reader().QueryContext(ctx,
		"SELECT id, created_at, task, result, reflection FROM episodes ORDER BY id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// Count returns the number of recorded episodes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.Reader().QueryRowContext(ctx, "SELECT COUNT(*) FROM episodes").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting episodes: %w", err)
	}
	return n, nil
}

func scanEpisodes(rows *sql.Rows) ([]Episode, error) {
	episodes := []Episode{}
	for rows.Next() {
		var (
			e  Episode
			ms int64
		)
		if err := rows.Scan(&e.ID, &ms, &e.Task, &e.Result, &e.Reflection); err != nil {
			return nil, fmt.Errorf("scanning episode: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		episodes = append(episodes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating episodes: %w", err)
	}
	return episodes, nil
}
