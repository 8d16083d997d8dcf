package cart

import (
	"errors"
	"sync"

	"github.com/shophub/storefront/internal/domain"
)

// ErrNotInitialized is the panic value raised when a Cart is used without
// having been built by New.
var ErrNotInitialized = errors.New("cart: used before initialization, construct with cart.New")

// ErrNilObserver is the panic value raised when Subscribe is given a nil
// Observer.
var ErrNilObserver = errors.New("cart: nil observer")

// Observer receives every state published by a Cart. It runs synchronously
// inside the command that produced the state and must not issue commands on
// the same Cart.
type Observer func(state domain.CartState)

type subscription struct {
	id       int
	observer Observer
}

// Cart owns one cart state and is the only way to change it. Commands are
// applied one at a time in the order they arrive, and each resulting state is
// handed to all observers, in subscription order, before the command returns.
type Cart struct {
	dispatchMu sync.Mutex // orders commands together with their notifications

	mu        sync.RWMutex
	state     domain.CartState
	observers []subscription
	nextID    int
	ready     bool
}

// New returns an empty cart with the given observers already subscribed.
func New(observers ...Observer) *Cart {
	c := &Cart{
		state: domain.EmptyCart(),
		ready: true,
	}
	for _, o := range observers {
		c.Subscribe(o)
	}
	return c
}

func (c *Cart) AddToCart(product domain.Product) domain.CartState {
	return c.Dispatch(Add{Product: product})
}

func (c *Cart) RemoveFromCart(id domain.ProductID) domain.CartState {
	return c.Dispatch(Remove{ID: id})
}

// UpdateQuantity sets the quantity for id. A quantity of zero or less removes
// the line, same as RemoveFromCart.
func (c *Cart) UpdateQuantity(id domain.ProductID, quantity int) domain.CartState {
	return c.Dispatch(SetQuantity{ID: id, Quantity: quantity})
}

func (c *Cart) ClearCart() domain.CartState {
	return c.Dispatch(Clear{})
}

// Dispatch applies cmd, publishes the new state and returns a copy of it.
func (c *Cart) Dispatch(cmd Command) domain.CartState {
	c.mustBeReady()

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	c.state = Apply(c.state, cmd)
	next := c.state
	observers := make([]subscription, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, s := range observers {
		s.observer(next.Clone())
	}
	return next.Clone()
}

// State returns a snapshot of the current state. Callers own the snapshot;
// changing it does not affect the cart.
func (c *Cart) State() domain.CartState {
	c.mustBeReady()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Subscribe registers o for future states and returns a function that
// removes it again.
func (c *Cart) Subscribe(o Observer) (unsubscribe func()) {
	c.mustBeReady()
	if o == nil {
		panic(ErrNilObserver)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.observers = append(c.observers, subscription{id: id, observer: o})

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(id) })
	}
}

func (c *Cart) unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.observers {
		if s.id == id {
			c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
			return
		}
	}
}

func (c *Cart) mustBeReady() {
	if c == nil || !c.ready {
		panic(ErrNotInitialized)
	}
}
