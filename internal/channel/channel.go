package channel

import (
	"context"

	"sitesync/internal/config"
	"sitesync/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Topics for the two directions. The contexts share no memory; everything
// they coordinate on crosses one of these.
const (
	topicToForeground = "sitesync:to_foreground"
	topicToBackground = "sitesync:to_background"
)

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Ping verifies the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Channel is one endpoint of the cross-context message link. Delivery is
// best-effort and at-most-once: there is no acknowledgement, so senders
// re-send opportunistically instead of relying on a single delivery.
type Channel struct {
	client    *redis.Client
	logger    zerolog.Logger
	sendTopic string
	recvTopic string
}

// NewForeground returns the agent's endpoint.
func NewForeground(client *redis.Client, logger *zerolog.Logger) *Channel {
	return &Channel{
		client:    client,
		logger:    logger.With().Str("component", "channel").Str("side", "foreground").Logger(),
		sendTopic: topicToBackground,
		recvTopic: topicToForeground,
	}
}

// NewBackground returns the daemon's endpoint.
func NewBackground(client *redis.Client, logger *zerolog.Logger) *Channel {
	return &Channel{
		client:    client,
		logger:    logger.With().Str("component", "channel").Str("side", "background").Logger(),
		sendTopic: topicToForeground,
		recvTopic: topicToBackground,
	}
}

// Send publishes a message to the peer context. A delivery failure is
// unobservable to the peer and is only logged here; the resend-on-activation
// policy is the sole mitigation.
func (c *Channel) Send(ctx context.Context, msg models.Message) {
	if err := msg.Validate(); err != nil {
		c.logger.Error().Err(err).Msg("refusing to send invalid message")
		return
	}
	data, err := msg.Encode()
	if err != nil {
		c.logger.Error().Err(err).Msg("encode message failed")
		return
	}
	if err := c.client.Publish(ctx, c.sendTopic, data).Err(); err != nil {
		c.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("message publish failed")
	}
}

// Listen subscribes to this endpoint's inbound topic and dispatches each
// valid message to the handler until ctx is done. Messages arrive unordered
// with respect to anything else; handlers must be idempotent. Unknown or
// malformed messages are dropped with a log line.
func (c *Channel) Listen(ctx context.Context, handler func(models.Message)) error {
	sub := c.client.Subscribe(ctx, c.recvTopic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				msg, err := models.DecodeMessage([]byte(raw.Payload))
				if err != nil {
					c.logger.Warn().Err(err).Msg("dropping channel message")
					continue
				}
				handler(msg)
			}
		}
	}()

	return nil
}
