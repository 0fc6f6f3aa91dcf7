package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sitesync/internal/export"
	"sitesync/internal/models"
	syncengine "sitesync/internal/sync"
)

// handleMutations accepts a logical mutation from the optimistic-update call
// sites: the entry is durably queued and, when an entity id is given, that
// entity is marked dirty. The caller has already applied the edit locally.
func (s *HTTPServer) handleMutations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		TargetURL string            `json:"target_url"`
		Method    string            `json:"method"`
		Headers   map[string]string `json:"headers"`
		Body      json.RawMessage   `json:"body"`
		EntityID  string            `json:"entity_id"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m := models.QueuedMutation{
		TargetURL: body.TargetURL,
		Method:    strings.ToUpper(strings.TrimSpace(body.Method)),
		Headers:   body.Headers,
		Body:      body.Body,
	}
	if err := s.store.EnqueueMutation(r.Context(), &m); err != nil {
		if errors.Is(err, models.ErrInvalidMutation) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("enqueue mutation failed")
		writeError(w, http.StatusInternalServerError, "failed to queue mutation")
		return
	}

	if body.EntityID != "" {
		if err := s.store.MarkEntityUpdated(r.Context(), body.EntityID); err != nil {
			s.logger.Warn().Err(err).Str("entity_id", body.EntityID).Msg("mark updated after enqueue failed")
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": m.ID})
}

// handleEntities dispatches /v1/entities/{id}[/suffix].
func (s *HTTPServer) handleEntities(w http.ResponseWriter, r *http.Request) {
	const prefix = "/v1/entities/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	id, suffix, _ := strings.Cut(rest, "/")
	id = strings.TrimSpace(id)
	if id == "" {
		writeError(w, http.StatusBadRequest, "entity id is required")
		return
	}

	switch suffix {
	case "":
		s.handleEntity(w, r, id)
	case "sync-status":
		s.handleEntitySyncStatus(w, r, id)
	case "pending-count":
		s.handleEntityPendingCount(w, r, id)
	case "synced":
		s.handleEntityMarkSynced(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleEntity(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		e, err := s.store.GetEntity(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if e == nil {
			writeError(w, http.StatusNotFound, "entity not cached")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":           e.ID,
			"payload":      json.RawMessage(e.Payload),
			"last_updated": e.LastUpdated,
			"last_synced":  e.LastSynced,
		})

	case http.MethodPut:
		// Optimistic local snapshot: payload and last_updated move,
		// last_synced stays, so the entity reads as dirty until a refresh.
		var body struct {
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Payload) == 0 {
			writeError(w, http.StatusBadRequest, "payload is required")
			return
		}
		e := models.CachedEntity{ID: id, Payload: body.Payload}
		if err := s.store.SaveEntity(r.Context(), &e, false); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleEntitySyncStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.store.EntitySyncStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *HTTPServer) handleEntityPendingCount(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	// Queued mutations carry the job id inside their target URL; counting
	// by URL pattern avoids exposing queue contents to the UI.
	count, err := s.store.CountMutationsMatching(r.Context(), "%/jobs/"+id+"%")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *HTTPServer) handleEntityMarkSynced(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.MarkEntitySynced(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleSync runs a manual sync pass. The scheduler's cooldown still
// applies; a suppressed trigger reports started=false.
func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	started := s.scheduler.Trigger(r.Context(), syncengine.TriggerManual)
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

func (s *HTTPServer) handleSyncState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.SyncState(r.Context()))
}

// handleVisibility receives the UI's window visibility edges; the agent
// cannot observe them itself.
func (s *HTTPServer) handleVisibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	started := false
	if body.Visible {
		started = s.scheduler.Trigger(r.Context(), syncengine.TriggerVisibilityRegained)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

// handleSession receives session tokens from the excluded auth layer.
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
			writeError(w, http.StatusBadRequest, "token is required")
			return
		}
		s.announcer.Login(r.Context(), body.Token)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	case http.MethodDelete:
		s.announcer.Logout(r.Context())
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleBackground(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.announcer.SetBackgroundMode(r.Context(), body.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (s *HTTPServer) handleRemote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		BaseURL string `json:"base_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "base_url is required")
		return
	}
	if err := s.announcer.SetAPIBaseURL(r.Context(), body.BaseURL); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"base_url": body.BaseURL})
}

func (s *HTTPServer) handleFailedReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	letters, err := s.store.ListDeadLetters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	path, err := export.FailedMutations(letters, s.exportDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=failed_mutations.xlsx")
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
