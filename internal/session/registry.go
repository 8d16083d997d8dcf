package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/cart"
	"github.com/shophub/storefront/internal/domain"
)

// CleanupInterval is how often idle sessions are looked for.
const CleanupInterval = time.Minute

// ObserverFactory builds an observer bound to one session. It is called once
// per new cart.
type ObserverFactory func(sessionID string) cart.Observer

type entry struct {
	cart     *cart.Cart
	lastSeen time.Time
}

// Registry keeps one cart per shopper session in memory. Sessions that have
// not been touched for ttl are dropped together with their cart.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	ttl       time.Duration
	factories []ObserverFactory
	logger    *zap.Logger
	now       func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewRegistry starts a registry and its background cleanup. Every cart it
// creates gets one observer from each factory, in the order given.
func NewRegistry(ttl time.Duration, logger *zap.Logger, factories ...ObserverFactory) *Registry {
	r := newRegistry(ttl, logger, factories...)

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

func newRegistry(ttl time.Duration, logger *zap.Logger, factories ...ObserverFactory) *Registry {
	return &Registry{
		sessions:    make(map[string]*entry),
		ttl:         ttl,
		factories:   factories,
		logger:      logger,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
}

// Cart returns the cart of sessionID, creating an empty one on first use.
func (r *Registry) Cart(sessionID string) *cart.Cart {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[sessionID]; ok {
		e.lastSeen = r.now()
		return e.cart
	}

	observers := make([]cart.Observer, 0, len(r.factories))
	for _, f := range r.factories {
		observers = append(observers, f(sessionID))
	}
	c := cart.New(observers...)
	r.sessions[sessionID] = &entry{cart: c, lastSeen: r.now()}

	r.logger.Debug("session started", zap.String("session_id", sessionID))
	return c
}

// Lookup returns the cart of an existing session without creating one.
func (r *Registry) Lookup(sessionID string) (*cart.Cart, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.cart, true
}

// Drop ends a session and discards its cart.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	delete(r.sessions, sessionID)
	r.logger.Debug("session ended", zap.String("session_id", sessionID))
}

func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the background cleanup.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCleanup) })
	r.wg.Wait()
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.expireSessions()
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *Registry) expireSessions() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			r.logger.Debug("session expired", zap.String("session_id", id))
		}
	}
}

// LogObserver logs every state a session's cart publishes.
func LogObserver(logger *zap.Logger) ObserverFactory {
	return func(sessionID string) cart.Observer {
		return func(state domain.CartState) {
			logger.Debug("cart updated",
				zap.String("session_id", sessionID),
				zap.Int("lines", len(state.Items)),
				zap.Int("item_count", state.ItemCount),
				zap.String("total", state.Total.String()))
		}
	}
}
