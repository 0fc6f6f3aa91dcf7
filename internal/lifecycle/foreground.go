package lifecycle

import (
	"context"

	"sitesync/internal/channel"
	"sitesync/internal/models"
	"sitesync/internal/store"
	syncengine "sitesync/internal/sync"

	"github.com/rs/zerolog"
)

// Announcer is the foreground half of the coordination protocol. Because
// channel delivery is at-most-once with no acknowledgement, the announcer
// re-sends the current token and settings on activation and on every login
// rather than trusting any single send.
type Announcer struct {
	store   *store.Store
	auth    *syncengine.AuthContext
	ch      *channel.Channel
	targets []BaseURLTarget
	logger  zerolog.Logger
}

func NewAnnouncer(st *store.Store, auth *syncengine.AuthContext, ch *channel.Channel, targets []BaseURLTarget, logger *zerolog.Logger) *Announcer {
	return &Announcer{
		store:   st,
		auth:    auth,
		ch:      ch,
		targets: targets,
		logger:  logger.With().Str("component", "announcer").Logger(),
	}
}

// AnnounceActivation pushes the current token, base URL and background flag
// to the peer. Called once on agent startup.
func (a *Announcer) AnnounceActivation(ctx context.Context) {
	if token, ok := a.auth.Token(); ok {
		a.ch.Send(ctx, models.AuthTokenUpdate(token))
	}

	settings, err := a.store.LoadSettings(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings for announce failed")
		return
	}
	if settings.APIBaseURL != "" {
		a.ch.Send(ctx, models.APIBaseURLUpdate(settings.APIBaseURL))
	}
	a.ch.Send(ctx, models.BackgroundModeChanged(settings.BackgroundEnabled))
}

// Login stores the fresh session token and forwards it to the background.
func (a *Announcer) Login(ctx context.Context, token string) {
	a.auth.SetToken(token)
	a.ch.Send(ctx, models.AuthTokenUpdate(token))
}

// Logout clears both contexts' tokens.
func (a *Announcer) Logout(ctx context.Context) {
	a.auth.Clear()
	a.ch.Send(ctx, models.AuthTokenClear())
}

// SetAPIBaseURL repoints both contexts at a new remote and persists it.
func (a *Announcer) SetAPIBaseURL(ctx context.Context, url string) error {
	for _, t := range a.targets {
		t.SetBaseURL(url)
	}
	settings, err := a.store.LoadSettings(ctx)
	if err != nil {
		return err
	}
	settings.APIBaseURL = url
	if err := a.store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	a.ch.Send(ctx, models.APIBaseURLUpdate(url))
	return nil
}

// SetBackgroundMode persists the flag and signals the daemon.
func (a *Announcer) SetBackgroundMode(ctx context.Context, enabled bool) error {
	if err := a.store.SetBackgroundEnabled(ctx, enabled); err != nil {
		return err
	}
	a.ch.Send(ctx, models.BackgroundModeChanged(enabled))
	return nil
}

// Handle processes messages addressed to the foreground. The only one the
// background sends is a token request.
func (a *Announcer) Handle(ctx context.Context, msg models.Message) {
	switch msg.Type {
	case models.MsgRequestAuthToken:
		if token, ok := a.auth.Token(); ok {
			a.ch.Send(ctx, models.AuthTokenUpdate(token))
		} else {
			a.logger.Info().Msg("background requested a token but none is held")
		}
	default:
		a.logger.Warn().Str("type", string(msg.Type)).Msg("dropping message addressed to foreground")
	}
}
