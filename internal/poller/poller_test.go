package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/cart"
	"github.com/shophub/storefront/internal/domain"
)

// mockReader hands out queued messages, then blocks until ctx is done.
type mockReader struct {
	m        sync.Mutex
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (r *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.m.Lock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.m.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.m.Unlock()
		return msg, nil
	}
	r.m.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *mockReader) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.closed = true
	return nil
}

func (r *mockReader) pending() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.messages) + len(r.errs)
}

type carts map[string]*cart.Cart

func (c carts) Lookup(sessionID string) (*cart.Cart, bool) {
	found, ok := c[sessionID]
	return found, ok
}

func filledCart() *cart.Cart {
	c := cart.New()
	c.AddToCart(domain.Product{ID: "1", Price: decimal.NewFromInt(4)})
	return c
}

func TestHandle_ClearsSessionCart(t *testing.T) {
	target := filledCart()
	other := filledCart()
	p := NewPoller(&mockReader{}, carts{"s1": target, "s2": other}, zap.NewNop())

	p.handle(kafka.Message{Value: []byte(`{"session_id":"s1","checkout_id":"c-9"}`)})

	assert.Equal(t, 0, target.State().ItemCount)
	assert.Equal(t, 1, other.State().ItemCount)
}

func TestHandle_IgnoresBadMessages(t *testing.T) {
	target := filledCart()
	p := NewPoller(&mockReader{}, carts{"s1": target}, zap.NewNop())

	p.handle(kafka.Message{Value: []byte(`not json`)})
	p.handle(kafka.Message{Value: []byte(`{"user_id":"s1"}`)})
	p.handle(kafka.Message{Value: []byte(`{"session_id":"unknown"}`)})

	assert.Equal(t, 1, target.State().ItemCount)
}

func TestRun_ConsumesUntilCanceled(t *testing.T) {
	target := filledCart()
	reader := &mockReader{
		errs: []error{errors.New("broker hiccup")},
		messages: []kafka.Message{
			{Value: []byte(`{"session_id":"s1"}`)},
		},
	}
	p := NewPoller(reader, carts{"s1": target}, zap.NewNop())
	p.errBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return reader.pending() == 0 && target.State().ItemCount == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}

	p.Close()
	assert.True(t, reader.closed)
}
