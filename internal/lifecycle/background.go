package lifecycle

import (
	"context"
	stdsync "sync"

	"sitesync/internal/channel"
	"sitesync/internal/models"
	"sitesync/internal/store"
	syncengine "sitesync/internal/sync"

	"github.com/rs/zerolog"
)

// State tracks the background context through its lifecycle.
type State int

const (
	Installed State = iota
	ActiveStopped
	ActiveRunning
	Terminated
)

func (s State) String() string {
	switch s {
	case Installed:
		return "installed"
	case ActiveStopped:
		return "active_stopped"
	case ActiveRunning:
		return "active_running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// BaseURLTarget is anything that resolves against the remote API base URL.
type BaseURLTarget interface {
	SetBaseURL(url string)
}

// Runner drives the background context: it owns the daemon's scheduler
// loops and reacts to channel messages. Handlers are idempotent; messages
// may arrive duplicated or in any order.
type Runner struct {
	store     *store.Store
	auth      *syncengine.AuthContext
	scheduler *syncengine.Scheduler
	ch        *channel.Channel
	targets   []BaseURLTarget
	logger    zerolog.Logger

	mu     stdsync.Mutex
	state  State
	runCtx context.Context
}

func NewRunner(st *store.Store, auth *syncengine.AuthContext, scheduler *syncengine.Scheduler, ch *channel.Channel, targets []BaseURLTarget, logger *zerolog.Logger) *Runner {
	return &Runner{
		store:     st,
		auth:      auth,
		scheduler: scheduler,
		ch:        ch,
		targets:   targets,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
		state:     Installed,
	}
}

// SeedBackgroundFlag writes the configured background flag on first run.
// Once a settings blob exists the persisted value wins; the config file
// only decides the initial state.
func SeedBackgroundFlag(ctx context.Context, st *store.Store, enabled bool) error {
	exists, err := st.SettingsExist(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return st.SetBackgroundEnabled(ctx, enabled)
}

// Activate claims the context and starts the loops only when the persisted
// enabled flag says so. ctx is the process lifetime; the loops stop with it.
func (r *Runner) Activate(ctx context.Context) error {
	r.mu.Lock()
	r.runCtx = ctx
	r.state = ActiveStopped
	r.mu.Unlock()

	settings, err := r.store.LoadSettings(ctx)
	if err != nil {
		// Stay activated but stopped; a BACKGROUND_MODE_CHANGED message
		// can still start the loops.
		r.logger.Error().Err(err).Msg("load settings on activate failed")
		return nil
	}

	if settings.APIBaseURL != "" {
		for _, t := range r.targets {
			t.SetBaseURL(settings.APIBaseURL)
		}
	}
	if settings.BackgroundEnabled {
		r.startLoops()
	}
	return nil
}

// Handle processes one inbound channel message.
func (r *Runner) Handle(ctx context.Context, msg models.Message) {
	switch msg.Type {
	case models.MsgAuthTokenUpdate:
		r.auth.SetToken(msg.Token)
		r.logger.Info().Msg("session token updated")

	case models.MsgAuthTokenClear:
		// Discard immediately; no further mutation executes until a new
		// token arrives. An already in-flight drain resolved its token
		// before this message and is not undone.
		r.auth.Clear()
		r.logger.Info().Msg("session token cleared")

	case models.MsgAPIBaseURLUpdate:
		for _, t := range r.targets {
			t.SetBaseURL(msg.URL)
		}
		settings, err := r.store.LoadSettings(ctx)
		if err == nil {
			settings.APIBaseURL = msg.URL
			err = r.store.SaveSettings(ctx, settings)
		}
		if err != nil {
			r.logger.Error().Err(err).Msg("persist base url failed")
		}

	case models.MsgBackgroundModeChanged:
		if msg.Enabled {
			r.startLoops()
		} else {
			r.stopLoops()
		}
		if err := r.store.SetBackgroundEnabled(ctx, msg.Enabled); err != nil {
			r.logger.Error().Err(err).Msg("persist background flag failed")
		}

	case models.MsgRequestAuthToken:
		// Only the background side sends this; receiving it here means a
		// misrouted message.
		r.logger.Warn().Msg("dropping REQUEST_AUTH_TOKEN addressed to background")
	}
}

// RequestToken asks the foreground for a session token. Wired as the
// scheduler's missing-token hook.
func (r *Runner) RequestToken() {
	r.mu.Lock()
	ctx := r.runCtx
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	r.ch.Send(ctx, models.RequestAuthToken())
}

func (r *Runner) startLoops() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Terminated {
		return
	}
	ctx := r.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	// StartTimers is idempotent; repeated enable messages leave one pair.
	r.scheduler.StartTimers(ctx)
	r.state = ActiveRunning
	r.logger.Info().Msg("background loops running")
}

func (r *Runner) stopLoops() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ActiveRunning {
		return
	}
	// Timers stop; an in-flight drain finishes on its own.
	r.scheduler.StopTimers()
	r.state = ActiveStopped
	r.logger.Info().Msg("background loops stopped")
}

// Terminate stops the loops synchronously before the process exits.
func (r *Runner) Terminate() {
	r.stopLoops()
	r.mu.Lock()
	r.state = Terminated
	r.mu.Unlock()
}

// State reports the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
