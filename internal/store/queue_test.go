package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sitesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueMutation_Defaults(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	m := &models.QueuedMutation{
		TargetURL: "/jobs/42/tasks/7",
		Method:    "PATCH",
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      []byte(`{"status":"done"}`),
	}
	require.NoError(t, st.EnqueueMutation(ctx, m))

	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	assert.Equal(t, 0, m.Attempts)
	assert.Equal(t, models.DefaultMaxAttempts, m.MaxAttempts)
}

func TestEnqueueMutation_ConfiguredDefaultMaxAttempts(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "sitesync.db"), WithDefaultMaxAttempts(3))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	m := &models.QueuedMutation{TargetURL: "/jobs/4/status", Method: "POST"}
	require.NoError(t, st.EnqueueMutation(ctx, m))
	assert.Equal(t, 3, m.MaxAttempts)

	// An explicit cap on the mutation itself still wins.
	explicit := &models.QueuedMutation{TargetURL: "/jobs/5/status", Method: "POST", MaxAttempts: 8}
	require.NoError(t, st.EnqueueMutation(ctx, explicit))
	assert.Equal(t, 8, explicit.MaxAttempts)
}

func TestEnqueueMutation_RejectsInvalid(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	err := st.EnqueueMutation(ctx, &models.QueuedMutation{Method: "PATCH"})
	require.Error(t, err)

	err = st.EnqueueMutation(ctx, &models.QueuedMutation{TargetURL: "/jobs/1", Method: "TRACE"})
	require.Error(t, err)
}

func TestListMutations_FIFOOrder(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		m := &models.QueuedMutation{
			ID:        models.NewMutationID(base.Add(time.Duration(i) * time.Second)),
			TargetURL: "/jobs/1",
			Method:    "PATCH",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, st.EnqueueMutation(ctx, m))
	}

	muts, err := st.ListMutations(ctx)
	require.NoError(t, err)
	require.Len(t, muts, 5)
	for i := 1; i < len(muts); i++ {
		assert.False(t, muts[i].CreatedAt.Before(muts[i-1].CreatedAt),
			"entry %d created before entry %d", i, i-1)
	}
}

func TestRemoveMutation_Idempotent(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	m := &models.QueuedMutation{TargetURL: "/jobs/1", Method: "POST"}
	require.NoError(t, st.EnqueueMutation(ctx, m))

	require.NoError(t, st.RemoveMutation(ctx, m.ID))
	// Removing a gone id is a no-op, not an error.
	require.NoError(t, st.RemoveMutation(ctx, m.ID))
	require.NoError(t, st.RemoveMutation(ctx, "never-existed"))

	muts, err := st.ListMutations(ctx)
	require.NoError(t, err)
	assert.Empty(t, muts)
}

func TestUpdateMutationAttempts(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	m := &models.QueuedMutation{TargetURL: "/jobs/1", Method: "PUT"}
	require.NoError(t, st.EnqueueMutation(ctx, m))

	require.NoError(t, st.UpdateMutationAttempts(ctx, m.ID, 3))

	muts, err := st.ListMutations(ctx)
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, 3, muts[0].Attempts)

	// A concurrently removed entry fails loudly.
	err = st.UpdateMutationAttempts(ctx, "gone", 1)
	require.ErrorIs(t, err, ErrMutationNotFound)
}

func TestCountMutationsMatching(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	targets := []string{
		"/jobs/42/tasks/1",
		"/jobs/42",
		"/jobs/7/tasks/9",
	}
	for _, target := range targets {
		require.NoError(t, st.EnqueueMutation(ctx, &models.QueuedMutation{TargetURL: target, Method: "PATCH"}))
	}

	count, err := st.CountMutationsMatching(ctx, "%/jobs/42%")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = st.CountMutationsMatching(ctx, "%/jobs/7%")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = st.CountMutationsMatching(ctx, "%/jobs/999%")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHeadersRoundTrip(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	m := &models.QueuedMutation{
		TargetURL: "/jobs/1",
		Method:    "POST",
		Headers:   map[string]string{"Authorization": "Bearer old", "X-Site": "north"},
	}
	require.NoError(t, st.EnqueueMutation(ctx, m))

	muts, err := st.ListMutations(ctx)
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, "Bearer old", muts[0].Headers["Authorization"])
	assert.Equal(t, "north", muts[0].Headers["X-Site"])
}
