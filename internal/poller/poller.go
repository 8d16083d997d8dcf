package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/cart"
)

// MessageReader is the subset of *kafka.Reader used here.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Carts finds the cart of a live session.
type Carts interface {
	Lookup(sessionID string) (*cart.Cart, bool)
}

type checkoutCompleted struct {
	SessionID string `json:"session_id"`
}

// Poller clears a session's cart once checkout for it has completed
// elsewhere.
type Poller struct {
	reader     MessageReader
	carts      Carts
	logger     *zap.Logger
	errBackoff time.Duration
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPoller(reader MessageReader, carts Carts, logger *zap.Logger) *Poller {
	return &Poller{
		reader:     reader,
		carts:      carts,
		logger:     logger,
		errBackoff: time.Second,
	}
}

// Run consumes messages until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.handleNext(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("error reading message", zap.Error(err))
			select {
			case <-time.After(p.errBackoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) handleNext(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}
	p.handle(m)
	return nil
}

func (p *Poller) handle(m kafka.Message) {
	var payload checkoutCompleted
	if err := json.Unmarshal(m.Value, &payload); err != nil {
		p.logger.Warn("error parsing message", zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	if payload.SessionID == "" {
		p.logger.Warn("missing session_id", zap.Int64("offset", m.Offset))
		return
	}

	c, ok := p.carts.Lookup(payload.SessionID)
	if !ok {
		p.logger.Debug("checkout for unknown session", zap.String("session_id", payload.SessionID))
		return
	}
	c.ClearCart()
	p.logger.Info("cart cleared after checkout", zap.String("session_id", payload.SessionID))
}
