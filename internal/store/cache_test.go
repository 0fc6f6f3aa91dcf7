package store

import (
	"context"
	"testing"
	"time"

	"sitesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveEntity_MarkSynced(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	e := &models.CachedEntity{ID: "job-1", Payload: []byte(`{"name":"foundation pour"}`)}
	require.NoError(t, st.SaveEntity(ctx, e, true))

	got, err := st.GetEntity(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.HasPendingChanges())
	assert.Equal(t, got.LastUpdated, got.LastSynced)
}

func TestSaveEntity_LocalEditPreservesLastSynced(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	e := &models.CachedEntity{ID: "job-1", Payload: []byte(`{"v":1}`)}
	require.NoError(t, st.SaveEntity(ctx, e, true))

	synced, err := st.GetEntity(ctx, "job-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	edit := &models.CachedEntity{ID: "job-1", Payload: []byte(`{"v":2}`)}
	require.NoError(t, st.SaveEntity(ctx, edit, false))

	got, err := st.GetEntity(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), got.Payload)
	assert.True(t, got.HasPendingChanges(), "local edit must read as dirty")
	assert.WithinDuration(t, synced.LastSynced, got.LastSynced, time.Millisecond)
}

func TestGetEntity_Absent(t *testing.T) {
	st := setupTestStore(t)

	got, err := st.GetEntity(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkUpdatedAndSynced(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	e := &models.CachedEntity{ID: "job-1", Payload: []byte(`{}`)}
	require.NoError(t, st.SaveEntity(ctx, e, true))

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, st.MarkEntityUpdated(ctx, "job-1"))

	status, err := st.EntitySyncStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, status.HasPendingChanges)

	require.NoError(t, st.MarkEntitySynced(ctx, "job-1"))
	status, err = st.EntitySyncStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, status.HasPendingChanges)

	// Touching an uncached entity fails loudly.
	require.Error(t, st.MarkEntityUpdated(ctx, "missing"))
	require.Error(t, st.MarkEntitySynced(ctx, "missing"))
}

func TestEntitySyncStatus_Absent(t *testing.T) {
	st := setupTestStore(t)

	status, err := st.EntitySyncStatus(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, status.HasPendingChanges)
	assert.True(t, status.LastUpdated.IsZero())
}

func TestListCleanAndDirtyEntities(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	clean := &models.CachedEntity{ID: "job-clean", Payload: []byte(`{}`)}
	require.NoError(t, st.SaveEntity(ctx, clean, true))

	dirty := &models.CachedEntity{ID: "job-dirty", Payload: []byte(`{}`)}
	require.NoError(t, st.SaveEntity(ctx, dirty, true))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, st.MarkEntityUpdated(ctx, "job-dirty"))

	cleanList, err := st.ListCleanEntities(ctx)
	require.NoError(t, err)
	require.Len(t, cleanList, 1)
	assert.Equal(t, "job-clean", cleanList[0].ID)

	dirtyList, err := st.ListDirtyEntities(ctx)
	require.NoError(t, err)
	require.Len(t, dirtyList, 1)
	assert.Equal(t, "job-dirty", dirtyList[0].ID)
}
