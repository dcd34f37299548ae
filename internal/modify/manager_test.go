package modify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reflexd/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := store.Open(store.Config{
		Path: filepath.Join(t.TempDir(), "reflexd.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := NewManager(db, nil)
	require.NoError(t, err)
	return m
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestApplyThenRollbackRestoresOriginal(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	path := writeTempFile(t, "timeout = 30\n")

	require.NoError(t, m.Apply(ctx, path, "timeout = 60\n", "raise timeout"))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "timeout = 60\n", string(got))

	require.NoError(t, m.Rollback(ctx, path))

	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "timeout = 30\n", string(got))
}

func TestApplyMissingTargetLeavesNoRecord(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "does-not-exist.conf")

	err := m.Apply(ctx, missing, "content", "should fail")
	assert.ErrorIs(t, err, ErrTargetNotFound)

	records, err := m.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRollbackWithoutBackupFails(t *testing.T) {
	m := newTestManager(t)
	path := writeTempFile(t, "original")

	err := m.Rollback(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoBackup)
}

func TestSecondApplyReplacesBackup(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	path := writeTempFile(t, "v1")

	require.NoError(t, m.Apply(ctx, path, "v2", "first change"))
	require.NoError(t, m.Apply(ctx, path, "v3", "second change"))

	// Rollback is non-stacking: it restores the state before the most
	// recent apply, not the original file.
	require.NoError(t, m.Rollback(ctx, path))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	// The backup was consumed.
	err = m.Rollback(ctx, path)
	assert.ErrorIs(t, err, ErrNoBackup)
}

func TestRollbackPreservesPermissions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "secrets.conf")
	require.NoError(t, os.WriteFile(path, []byte("key = old"), 0o600))

	require.NoError(t, m.Apply(ctx, path, "key = new", "rotate key"))
	require.NoError(t, m.Rollback(ctx, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "key = old", string(got))
}

func TestHistoryListsPendingModifications(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	a := writeTempFile(t, "a")
	b := writeTempFile(t, "b")

	require.NoError(t, m.Apply(ctx, a, "a2", "change a"))
	require.NoError(t, m.Apply(ctx, b, "b2", "change b"))

	records, err := m.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotEmpty(t, r.Description)
		assert.False(t, r.AppliedAt.IsZero())
	}

	empty, err := m.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
