package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sitesync/internal/config"
	"sitesync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupSnapshotRestorable(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "engine.db")

	st, err := New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.EnqueueMutation(ctx, &models.QueuedMutation{
		TargetURL: "/jobs/1/status",
		Method:    "PATCH",
	}))

	backupDir := filepath.Join(dir, "backups")
	logger := zerolog.Nop()
	svc := NewBackupService(dbPath, config.BackupConfig{
		Enabled:     true,
		StoragePath: backupDir,
	}, &logger)

	require.NoError(t, svc.Snapshot())

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The snapshot opens as a full engine database with the queue intact.
	restored, err := New(filepath.Join(backupDir, entries[0].Name()))
	require.NoError(t, err)
	defer restored.Close()

	mutations, err := restored.ListMutations(ctx)
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, "/jobs/1/status", mutations[0].TargetURL)
}

func TestBackupDisabledStartReturns(t *testing.T) {
	logger := zerolog.Nop()
	svc := NewBackupService("does-not-matter.db", config.BackupConfig{Enabled: false}, &logger)

	// Must return instead of blocking on the ticker loop.
	svc.Start(context.Background())
}
