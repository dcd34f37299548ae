// Package modify applies file-level content changes with a single-level
// backup and restores them on rollback.
//
// At most one pending backup exists per target: applying a second change
// before rolling back replaces the earlier backup, so rollback always
// restores the state just before the most recent apply. This non-stacking
// behavior is a documented limitation, not an accident.
package modify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/store"
)

var (
	// ErrTargetNotFound is returned when the target file does not exist.
	// Apply never creates files implicitly.
	ErrTargetNotFound = errors.New("modification target not found")
	// ErrNoBackup is returned by Rollback when no pending backup exists
	// for the target.
	ErrNoBackup = errors.New("no backup recorded for target")
)

// Record is one pending modification.
type Record struct {
	Target      string    `json:"target"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Manager applies and rolls back file modifications.
type Manager struct {
	db     *store.DB
	logger *zap.Logger
}

// NewManager creates a modification manager.
func NewManager(db *store.DB, logger *zap.Logger) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: db, logger: logger}, nil
}

// Apply replaces the content of target with newContent, keeping the prior
// content as the target's backup. A missing target is an error and leaves
// no record behind.
func (m *Manager) Apply(ctx context.Context, target, newContent, description string) error {
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}
	if err != nil {
		return fmt.Errorf("stat target: %w", err)
	}

	original, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("read target: %w", err)
	}
	if err := os.WriteFile(target, []byte(newContent), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write target: %w", err)
	}

	err = m.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO modifications (target, backup, new_content, description, applied_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(target) DO UPDATE SET
				backup = excluded.backup,
				new_content = excluded.new_content,
				description = excluded.description,
				applied_at = excluded.applied_at`,
			target, string(original), newContent, description, time.Now().UTC().UnixMilli(),
		)
		return err
	})
	if err != nil {
		// The file changed but the backup could not be recorded; put the
		// original bytes back so no unrecoverable state is left behind.
		if restoreErr := os.WriteFile(target, original, info.Mode().Perm()); restoreErr != nil {
			m.logger.Error("failed to restore target after record failure",
				zap.String("target", target),
				zap.Error(restoreErr),
			)
		}
		return fmt.Errorf("record modification: %w", err)
	}

	m.logger.Info("modification applied",
		zap.String("target", target),
		zap.String("description", description),
	)
	return nil
}

// Rollback restores the pending backup for target and clears it.
func (m *Manager) Rollback(ctx context.Context, target string) error {
	var backup string
	err := m.db.Write(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT backup FROM modifications WHERE target = ?`, target)
		if err := row.Scan(&backup); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNoBackup, target)
		} else if err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM modifications WHERE target = ?`, target)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNoBackup) {
			return err
		}
		return fmt.Errorf("rollback modification: %w", err)
	}

	// Keep the target's current permissions; fall back to 0644 only when
	// the file disappeared since the apply.
	mode := fs.FileMode(0o644)
	if info, statErr := os.Stat(target); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(target, []byte(backup), mode); err != nil {
		return fmt.Errorf("restore target: %w", err)
	}

	m.logger.Info("modification rolled back", zap.String("target", target))
	return nil
}

// History lists pending modifications, most recent first. A non-positive
// limit returns an empty slice.
func (m *Manager) History(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	rows, err := m.db.Reader().QueryContext(ctx, `
		SELECT target, description, applied_at
		FROM modifications
		ORDER BY applied_at DESC, target ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query modifications: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var applied int64
		if err := rows.Scan(&r.Target, &r.Description, &applied); err != nil {
			return nil, fmt.Errorf("scan modification: %w", err)
		}
		r.AppliedAt = time.UnixMilli(applied).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modifications: %w", err)
	}
	return records, nil
}
