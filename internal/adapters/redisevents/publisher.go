// Package redisevents publishes run lifecycle events to a Redis pub/sub
// channel so workers can react to new or completed runs without polling.
package redisevents

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/runplane/internal/domain/model"
)

// PublisherOptions groups dependencies for Publisher.
type PublisherOptions struct {
	Client  redis.UniversalClient
	Channel string
	Logger  *slog.Logger
}

// Publisher broadcasts run events over Redis pub/sub. Publishing is best
// effort: a failed publish is logged and never fails the run operation
// that produced the event.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewPublisher creates a Redis-backed event publisher.
func NewPublisher(opts PublisherOptions) *Publisher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  opts.Client,
		channel: opts.Channel,
		logger:  logger.With("component", "run_event_publisher"),
	}
}

// Publish sends the event to the configured channel.
func (p *Publisher) Publish(ctx context.Context, event model.RunEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal run event",
			"event_type", event.Type,
			"run_id", event.RunID,
			"error", err,
		)
		return
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.WarnContext(ctx, "failed to publish run event",
			"event_type", event.Type,
			"run_id", event.RunID,
			"channel", p.channel,
			"error", err,
		)
	}
}
