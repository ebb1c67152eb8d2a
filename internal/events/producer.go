package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Producer publishes admission events to the Redis stream. A nil Producer
// drops every publish, so callers never have to check whether events are
// enabled.
type Producer struct {
	publisher message.Publisher
	timeout   time.Duration
	logger    *zap.Logger
}

// NewProducer builds a redisstream publisher on top of the shared Redis
// client. Returns nil when client is nil, which disables publishing.
func NewProducer(client *redis.Client, timeout time.Duration, logger *zap.Logger) (*Producer, error) {
	if client == nil {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, newWatermillLogger(logger))
	if err != nil {
		return nil, err
	}

	return &Producer{publisher: publisher, timeout: timeout, logger: logger}, nil
}

// PublishTransitioned fires the transition event without blocking the
// caller. The transition is already committed, so failures are logged and
// never propagated.
func (p *Producer) PublishTransitioned(event AdmissionTransitionedEvent) {
	p.publishAsync(TopicAdmissionTransitioned, event)
}

func (p *Producer) publishAsync(topic string, payload interface{}) {
	if p == nil || p.publisher == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("event publish panic",
					zap.String("topic", topic),
					zap.Any("recover", r))
			}
		}()

		data, err := json.Marshal(payload)
		if err != nil {
			p.logger.Error("marshal event",
				zap.String("topic", topic),
				zap.Error(err))
			return
		}

		msg := message.NewMessage(watermill.NewUUID(), data)

		done := make(chan error, 1)
		go func() { done <- p.publisher.Publish(topic, msg) }()

		select {
		case err := <-done:
			if err != nil {
				p.logger.Warn("publish event",
					zap.String("topic", topic),
					zap.Error(err))
				return
			}
			p.logger.Debug("event published",
				zap.String("topic", topic),
				zap.Int("bytes", len(data)))
		case <-time.After(p.timeout):
			p.logger.Warn("publish event timed out",
				zap.String("topic", topic),
				zap.Duration("timeout", p.timeout))
		}
	}()
}

// Close releases the underlying publisher. Safe on a nil Producer.
func (p *Producer) Close() error {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.Close()
}
