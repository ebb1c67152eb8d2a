package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TransitionSink receives decoded transition events from the relay. The
// websocket hub and the metrics collector both implement it.
type TransitionSink interface {
	OnTransition(event AdmissionTransitionedEvent)
}

// Relay consumes the admission stream and fans events out to local sinks.
// Running it on every instance is what lets a dashboard connected to one
// instance see transitions applied on another.
type Relay struct {
	router *message.Router
	logger *zap.Logger
}

// NewRelay wires a consumer-group subscriber into a router with recovery
// and retry middleware. Sinks must not block; slow consumers stall the
// stream for the whole group.
func NewRelay(client *redis.Client, consumerGroup string, sinks []TransitionSink, logger *zap.Logger) (*Relay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wmLogger := newWatermillLogger(logger)

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroup,
	}, wmLogger)
	if err != nil {
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          wmLogger,
	}.Middleware)

	router.AddNoPublisherHandler(
		"admission-transition-relay",
		TopicAdmissionTransitioned,
		subscriber,
		func(msg *message.Message) error {
			var event AdmissionTransitionedEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				// A malformed payload never becomes valid; ack and move on.
				logger.Warn("drop malformed transition event",
					zap.String("message_id", msg.UUID),
					zap.Error(err))
				return nil
			}
			for _, sink := range sinks {
				sink.OnTransition(event)
			}
			return nil
		},
	)

	return &Relay{router: router, logger: logger}, nil
}

// Run blocks until ctx is cancelled or the router stops.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("event relay starting", zap.String("topic", TopicAdmissionTransitioned))
	return r.router.Run(ctx)
}

// Close shuts the router down and releases its subscriber.
func (r *Relay) Close() error {
	return r.router.Close()
}
