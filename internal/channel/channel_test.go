package channel

import (
	"context"
	"testing"
	"time"

	"sitesync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEndpoints(t *testing.T) (*Channel, *Channel) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.Nop()
	return NewForeground(client, &logger), NewBackground(client, &logger)
}

func collect(t *testing.T, ch *Channel, ctx context.Context) <-chan models.Message {
	t.Helper()
	out := make(chan models.Message, 16)
	require.NoError(t, ch.Listen(ctx, func(m models.Message) { out <- m }))
	return out
}

func waitFor(t *testing.T, out <-chan models.Message) models.Message {
	t.Helper()
	select {
	case m := <-out:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
		return models.Message{}
	}
}

func TestChannel_RoundTrip(t *testing.T) {
	fg, bg := newTestEndpoints(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bgInbox := collect(t, bg, ctx)

	fg.Send(ctx, models.AuthTokenUpdate("tok-1"))
	got := waitFor(t, bgInbox)
	assert.Equal(t, models.MsgAuthTokenUpdate, got.Type)
	assert.Equal(t, "tok-1", got.Token)

	fg.Send(ctx, models.BackgroundModeChanged(true))
	got = waitFor(t, bgInbox)
	assert.Equal(t, models.MsgBackgroundModeChanged, got.Type)
	assert.True(t, got.Enabled)
}

func TestChannel_DirectionsAreSeparate(t *testing.T) {
	fg, bg := newTestEndpoints(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fgInbox := collect(t, fg, ctx)
	bgInbox := collect(t, bg, ctx)

	// A token request travels background to foreground only.
	bg.Send(ctx, models.RequestAuthToken())

	got := waitFor(t, fgInbox)
	assert.Equal(t, models.MsgRequestAuthToken, got.Type)

	select {
	case m := <-bgInbox:
		t.Fatalf("background received its own message: %v", m.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_InvalidMessageNotSent(t *testing.T) {
	fg, bg := newTestEndpoints(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bgInbox := collect(t, bg, ctx)

	// A token update without a token fails validation and never leaves.
	fg.Send(ctx, models.Message{Type: models.MsgAuthTokenUpdate})
	// A type outside the taxonomy is refused too.
	fg.Send(ctx, models.Message{Type: "SELF_DESTRUCT"})
	// The next valid message proves the endpoint still works.
	fg.Send(ctx, models.APIBaseURLUpdate("https://api.example.com"))

	got := waitFor(t, bgInbox)
	assert.Equal(t, models.MsgAPIBaseURLUpdate, got.Type)
	assert.Equal(t, "https://api.example.com", got.URL)
	assert.Empty(t, bgInbox)
}

func TestChannel_MalformedPayloadDropped(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.Nop()
	bg := NewBackground(client, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bgInbox := collect(t, bg, ctx)

	// Raw garbage on the topic must not reach the handler or kill the loop.
	require.NoError(t, client.Publish(ctx, "sitesync:to_background", "not json").Err())
	require.NoError(t, client.Publish(ctx, "sitesync:to_background", `{"type":"UNKNOWN"}`).Err())

	valid, err := models.AuthTokenClear().Encode()
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, "sitesync:to_background", valid).Err())

	got := waitFor(t, bgInbox)
	assert.Equal(t, models.MsgAuthTokenClear, got.Type)
	assert.Empty(t, bgInbox)
}

func TestChannel_ListenStopsOnCancel(t *testing.T) {
	fg, bg := newTestEndpoints(t)

	ctx, cancel := context.WithCancel(context.Background())
	bgInbox := collect(t, bg, ctx)
	cancel()

	// Give the subscriber loop a moment to observe cancellation.
	time.Sleep(50 * time.Millisecond)

	fg.Send(context.Background(), models.AuthTokenUpdate("late"))
	select {
	case m, ok := <-bgInbox:
		if ok {
			t.Fatalf("received message after cancel: %v", m.Type)
		}
	case <-time.After(100 * time.Millisecond):
	}
}
