package sync

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"time"

	"sitesync/internal/events"
	"sitesync/internal/metrics"
	"sitesync/internal/store"

	"github.com/rs/zerolog"
)

// Trigger identifies what asked for a sync pass.
type Trigger string

const (
	TriggerConnectivityRegained Trigger = "connectivity_regained"
	TriggerVisibilityRegained   Trigger = "visibility_regained"
	TriggerPeriodic             Trigger = "periodic"
	TriggerManual               Trigger = "manual"
)

// State is the scheduler view exposed to the UI layer. Only LastSyncAt
// survives a restart.
type State struct {
	IsSyncing  bool      `json:"is_syncing"`
	IsOnline   bool      `json:"is_online"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// Scheduler decides when the queue is drained and the entity cache
// refreshed. One Scheduler lives in each execution context; it owns that
// context's timers.
type Scheduler struct {
	store     *store.Store
	processor *Processor
	detector  Detector
	fetcher   EntityFetcher
	auth      *AuthContext
	bus       *events.Bus
	logger    zerolog.Logger

	cooldown time.Duration
	interval time.Duration
	connPoll time.Duration
	now      func() time.Time

	// onMissingToken fires when a pass is skipped because no session token
	// is held; the background context uses it to ask the foreground for one.
	onMissingToken func()

	syncing atomic.Bool

	mu         stdsync.Mutex
	lastSyncAt time.Time
	wasOnline  bool
	timersStop context.CancelFunc
	timersDone chan struct{}
}

type SchedulerOptions struct {
	Cooldown       time.Duration
	Interval       time.Duration
	ConnPoll       time.Duration
	OnMissingToken func()
	Now            func() time.Time
}

func NewScheduler(st *store.Store, processor *Processor, detector Detector, fetcher EntityFetcher, auth *AuthContext, bus *events.Bus, logger *zerolog.Logger, opts SchedulerOptions) *Scheduler {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.ConnPoll <= 0 {
		opts.ConnPoll = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Scheduler{
		store:          st,
		processor:      processor,
		detector:       detector,
		fetcher:        fetcher,
		auth:           auth,
		bus:            bus,
		logger:         logger.With().Str("component", "scheduler").Logger(),
		cooldown:       opts.Cooldown,
		interval:       opts.Interval,
		connPoll:       opts.ConnPoll,
		now:            opts.Now,
		onMissingToken: opts.OnMissingToken,
	}

	// lastSyncAt is the one piece of scheduler state that persists.
	if settings, err := st.LoadSettings(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("load persisted lastSyncAt failed")
	} else {
		s.lastSyncAt = settings.LastSyncAt
	}

	return s
}

// Trigger applies the decision rule and, when it passes, runs one sync pass
// synchronously. It reports whether a pass ran. A suppressed trigger is
// dropped, never queued; a later trigger is assumed to come anyway.
func (s *Scheduler) Trigger(ctx context.Context, src Trigger) bool {
	if s.syncing.Load() {
		return false
	}
	if !s.detector.Online(ctx) {
		return false
	}

	now := s.now()
	s.mu.Lock()
	elapsed := now.Sub(s.lastSyncAt)
	s.mu.Unlock()

	if elapsed < s.cooldown {
		return false
	}
	// Regained connectivity or visibility are high-value reconciliation
	// moments and bypass the periodic baseline.
	if src == TriggerPeriodic && elapsed < s.interval {
		return false
	}

	if _, ok := s.auth.Token(); !ok {
		if s.onMissingToken != nil {
			s.onMissingToken()
		}
		return false
	}

	if !s.syncing.CompareAndSwap(false, true) {
		return false
	}
	defer s.syncing.Store(false)

	s.runPass(ctx, src)
	return true
}

func (s *Scheduler) runPass(ctx context.Context, src Trigger) {
	metrics.IncSyncPass(string(src))

	sum := s.processor.Drain(ctx)

	refreshed, skipped := s.refreshEntities(ctx)

	finished := s.now()
	s.mu.Lock()
	s.lastSyncAt = finished
	s.mu.Unlock()

	// Persisting lastSyncAt best-effort: a storage hiccup here must not
	// take down the loop.
	if err := s.store.SetLastSyncAt(ctx, finished); err != nil {
		s.logger.Error().Err(err).Msg("persist lastSyncAt failed")
	}

	_ = s.bus.PublishJSON(events.EventSyncPassCompleted, events.SyncPassPayload{
		Trigger:    string(src),
		Succeeded:  sum.Succeeded,
		Terminal:   sum.Terminal,
		Retried:    sum.Retried,
		Deferred:   sum.Deferred,
		Refreshed:  refreshed,
		Skipped:    skipped,
		FinishedAt: finished,
	})
}

// refreshEntities pulls the authoritative server copy for every entity
// without pending local changes. Dirty entities are skipped outright; the
// last full refresh wins, there is no field-level merge. A failed fetch is
// logged and does not retry until the next natural trigger.
func (s *Scheduler) refreshEntities(ctx context.Context) (refreshed, skipped int) {
	if s.fetcher == nil {
		return 0, 0
	}

	if dirty, err := s.store.ListDirtyEntities(ctx); err != nil {
		s.logger.Error().Err(err).Msg("list dirty entities failed")
	} else {
		skipped = len(dirty)
	}

	clean, err := s.store.ListCleanEntities(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list clean entities failed")
		return 0, skipped
	}

	for i := range clean {
		payload, err := s.fetcher.Fetch(ctx, clean[i].ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("entity_id", clean[i].ID).Msg("entity refresh failed")
			continue
		}
		clean[i].Payload = payload
		if err := s.store.SaveEntity(ctx, &clean[i], true); err != nil {
			s.logger.Error().Err(err).Str("entity_id", clean[i].ID).Msg("save refreshed entity failed")
			continue
		}
		refreshed++
	}
	return refreshed, skipped
}

// StartTimers launches the periodic tick and the connectivity watcher.
// Starting is idempotent: any running timer pair is stopped before the new
// one is created, so repeated starts leave at most one pair.
func (s *Scheduler) StartTimers(ctx context.Context) {
	s.StopTimers()

	s.mu.Lock()
	timersCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.timersStop = cancel
	s.timersDone = done
	s.mu.Unlock()

	// Stopping the timers must never cancel an in-flight pass: once a pass
	// starts it runs to completion. Passes therefore execute under a context
	// detached from timer shutdown; timersCtx only drives the select loops.
	passCtx := context.WithoutCancel(ctx)

	var wg stdsync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-timersCtx.Done():
				return
			case <-ticker.C:
				s.Trigger(passCtx, TriggerPeriodic)
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.connPoll)
		defer ticker.Stop()
		for {
			select {
			case <-timersCtx.Done():
				return
			case <-ticker.C:
				s.watchConnectivity(passCtx)
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler timers started")
}

func (s *Scheduler) watchConnectivity(ctx context.Context) {
	online := s.detector.Online(ctx)

	s.mu.Lock()
	was := s.wasOnline
	s.wasOnline = online
	s.mu.Unlock()

	if online == was {
		return
	}

	_ = s.bus.PublishJSON(events.EventConnectivityChanged, events.ConnectivityPayload{Online: online})
	if online {
		s.Trigger(ctx, TriggerConnectivityRegained)
	}
}

// StopTimers halts the timer pair and waits for the loops to exit. An
// in-flight pass is allowed to finish; only the timers stop.
func (s *Scheduler) StopTimers() {
	s.mu.Lock()
	cancel := s.timersStop
	done := s.timersDone
	s.timersStop = nil
	s.timersDone = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info().Msg("scheduler timers stopped")
}

// TimersRunning reports whether a timer pair is active.
func (s *Scheduler) TimersRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timersStop != nil
}

// SyncState snapshots the scheduler for the status surface.
func (s *Scheduler) SyncState(ctx context.Context) State {
	s.mu.Lock()
	last := s.lastSyncAt
	s.mu.Unlock()
	return State{
		IsSyncing:  s.syncing.Load(),
		IsOnline:   s.detector.Online(ctx),
		LastSyncAt: last,
	}
}
