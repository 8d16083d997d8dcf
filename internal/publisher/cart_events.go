package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/cart"
	"github.com/shophub/storefront/internal/domain"
)

const EventCartUpdated = "cart.updated"

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CartEvent struct {
	SessionID  string            `json:"session_id"`
	Items      []domain.LineItem `json:"items"`
	Total      decimal.Decimal   `json:"total"`
	ItemCount  int               `json:"item_count"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// CartEvents turns every published cart state into a Kafka message keyed by
// session, so one session's events stay ordered within a partition.
type CartEvents struct {
	writer  MessageWriter
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewKafkaWriter returns an async writer; WriteMessages only enqueues, so
// observers never wait on the broker.
func NewKafkaWriter(topic string, logger *zap.Logger, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("cart events delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
}

func NewCartEvents(writer MessageWriter, logger *zap.Logger) *CartEvents {
	return &CartEvents{
		writer:  writer,
		logger:  logger,
		timeout: time.Second,
		now:     time.Now,
	}
}

// Observer returns the cart observer for sessionID. Its signature matches
// session.ObserverFactory.
func (p *CartEvents) Observer(sessionID string) cart.Observer {
	return func(state domain.CartState) {
		p.publish(sessionID, state)
	}
}

func (p *CartEvents) publish(sessionID string, state domain.CartState) {
	payload, err := json.Marshal(CartEvent{
		SessionID:  sessionID,
		Items:      state.Items,
		Total:      state.Total,
		ItemCount:  state.ItemCount,
		OccurredAt: p.now().UTC(),
	})
	if err != nil {
		p.logger.Error("failed to marshal cart event", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventCartUpdated)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("failed to publish cart event", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (p *CartEvents) Close() error {
	return p.writer.Close()
}
