package models

import "time"

// CachedEntity is the local mirror of one remote aggregate (a job with its
// nested tasks), stored as a full denormalized snapshot.
type CachedEntity struct {
	ID          string    `json:"id"`
	Payload     []byte    `json:"payload"`
	LastUpdated time.Time `json:"last_updated"`
	LastSynced  time.Time `json:"last_synced"`
}

// HasPendingChanges reports whether a local edit has not yet been confirmed
// by a successful refresh or an explicit mark-synced call.
func (e *CachedEntity) HasPendingChanges() bool {
	return e.LastUpdated.After(e.LastSynced)
}

// SyncStatus is the per-entity view exposed to the UI layer.
type SyncStatus struct {
	LastUpdated       time.Time `json:"last_updated"`
	LastSynced        time.Time `json:"last_synced"`
	HasPendingChanges bool      `json:"has_pending_changes"`
}

// EngineSettings is the single-key blob held in the settings partition.
// LastSyncAt survives restarts; the rest of SyncState does not.
type EngineSettings struct {
	LastSyncAt        time.Time `json:"last_sync_at"`
	BackgroundEnabled bool      `json:"background_enabled"`
	APIBaseURL        string    `json:"api_base_url"`
}
