package models

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMutationID_SortsByCreationTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ids := []string{
		NewMutationID(base.Add(2 * time.Second)),
		NewMutationID(base),
		NewMutationID(base.Add(time.Second)),
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	assert.Equal(t, []string{ids[1], ids[2], ids[0]}, sorted)
}

func TestNewMutationID_UniqueAtSameInstant(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMutationID(now)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestQueuedMutationValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       QueuedMutation
		wantErr bool
	}{
		{"valid patch", QueuedMutation{TargetURL: "/jobs/1", Method: "PATCH"}, false},
		{"valid delete", QueuedMutation{TargetURL: "/jobs/1", Method: "DELETE"}, false},
		{"missing url", QueuedMutation{Method: "POST"}, true},
		{"get is read only", QueuedMutation{TargetURL: "/jobs/1", Method: "GET"}, true},
		{"lowercase verb", QueuedMutation{TargetURL: "/jobs/1", Method: "post"}, true},
		{"missing method", QueuedMutation{TargetURL: "/jobs/1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMutation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCachedEntity_HasPendingChanges(t *testing.T) {
	now := time.Now()

	synced := CachedEntity{ID: "a", LastUpdated: now, LastSynced: now}
	assert.False(t, synced.HasPendingChanges())

	dirty := CachedEntity{ID: "b", LastUpdated: now.Add(time.Second), LastSynced: now}
	assert.True(t, dirty.HasPendingChanges())

	refreshed := CachedEntity{ID: "c", LastUpdated: now, LastSynced: now.Add(time.Second)}
	assert.False(t, refreshed.HasPendingChanges())
}

func TestMessageValidate(t *testing.T) {
	assert.NoError(t, AuthTokenUpdate("tok").Validate())
	assert.NoError(t, AuthTokenClear().Validate())
	assert.NoError(t, APIBaseURLUpdate("https://api.example.com").Validate())
	assert.NoError(t, RequestAuthToken().Validate())
	assert.NoError(t, BackgroundModeChanged(false).Validate())

	// The taxonomy is closed: required payloads and unknown types fail.
	assert.Error(t, Message{Type: MsgAuthTokenUpdate}.Validate())
	assert.Error(t, Message{Type: MsgAPIBaseURLUpdate}.Validate())
	assert.Error(t, Message{Type: "REBOOT"}.Validate())
	assert.Error(t, Message{}.Validate())
}

func TestDecodeMessage(t *testing.T) {
	raw, err := AuthTokenUpdate("tok-1").Encode()
	require.NoError(t, err)

	got, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, MsgAuthTokenUpdate, got.Type)
	assert.Equal(t, "tok-1", got.Token)

	_, err = DecodeMessage([]byte("not json"))
	assert.Error(t, err)

	// Valid JSON with a type outside the taxonomy is rejected, not passed on.
	_, err = DecodeMessage([]byte(`{"type":"FORMAT_DISK"}`))
	assert.Error(t, err)
}
