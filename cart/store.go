// Package cart keeps the visible shopping cart in sync with where it is persisted.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"goflare.io/storefront/models"
	"goflare.io/storefront/models/enum"
	"goflare.io/storefront/validate"
)

var (
	ErrNotAuthenticated = errors.New("cart is not bound to an authenticated session")
	ErrItemNotInCart    = errors.New("item not in cart")
)

var _ Service = (*Store)(nil)

// Result is the outcome of one cart operation. Cart is the visible state after the
// operation: the committed candidate on success, the untouched previous state on failure.
type Result struct {
	Cart    models.Cart
	Err     error
	Message string
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Store owns the visible cart. Operations are serialized: a second call waits for the
// first to settle, so the last call issued is the last one applied.
type Store struct {
	ops sync.Mutex

	mu       sync.RWMutex
	cart     models.Cart
	inflight int
	repo     Repository

	notifier Notifier
	logger   *zap.Logger
}

func NewStore(repo Repository, notifier Notifier, logger *zap.Logger) *Store {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Store{
		cart:     *models.NewCart(),
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Cart returns a copy of the visible cart.
func (s *Store) Cart() models.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.cart.Clone()
	c.Loading = s.inflight > 0
	return c
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

func (s *Store) Mode() enum.CartMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.Mode()
}

// Use switches the repository the cart is persisted to. The visible cart is kept.
func (s *Store) Use(repo Repository) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	s.repo = repo
	s.mu.Unlock()
}

// Reset empties the visible cart and binds it to repo without persisting anything.
func (s *Store) Reset(repo Repository) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	s.repo = repo
	s.cart = *models.NewCart()
	s.mu.Unlock()
}

// Load hydrates the visible cart from the current repository.
func (s *Store) Load(ctx context.Context) Result {
	s.ops.Lock()
	defer s.ops.Unlock()

	return s.load(ctx, "Failed to load cart")
}

// Fetch replaces the visible cart with the backend's view. Guest carts cannot be fetched.
func (s *Store) Fetch(ctx context.Context) Result {
	s.ops.Lock()
	defer s.ops.Unlock()

	if s.Mode() != enum.CartModeAuthenticated {
		return s.fail("Failed to fetch cart", s.Cart(), ErrNotAuthenticated)
	}
	return s.load(ctx, "Failed to fetch cart")
}

func (s *Store) load(ctx context.Context, failure string) Result {
	previous := s.Cart()

	s.beginSync()
	loaded, err := s.repository().Load(ctx)
	s.endSync()
	if err != nil {
		return s.fail(failure, previous, err)
	}

	s.commit(loaded)
	return Result{Cart: s.Cart()}
}

// AddItem increments the quantity of product, adding it when absent. A zero quantity
// adds one unit.
func (s *Store) AddItem(ctx context.Context, product models.ProductSnapshot, quantity int) Result {
	if quantity == 0 {
		quantity = 1
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	if err := validate.Check(models.CartItem{Product: product, Quantity: quantity}); err != nil {
		return s.fail("Failed to add item to cart", s.Cart(), err)
	}

	candidate := s.Cart().WithAdded(product, quantity)
	return s.apply(ctx, candidate,
		func(ctx context.Context, repo Repository) error { return repo.Save(ctx, candidate) },
		fmt.Sprintf("Added %s to cart", displayName(product)),
		"Failed to add item to cart")
}

// UpdateItem sets the absolute quantity of productID. A quantity below 1 removes it.
func (s *Store) UpdateItem(ctx context.Context, productID string, quantity int) Result {
	if quantity < 1 {
		return s.RemoveItem(ctx, productID)
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	current := s.Cart()
	if _, ok := current.Find(productID); !ok {
		return s.fail("Failed to update cart", current, fmt.Errorf("%w: %s", ErrItemNotInCart, productID))
	}

	candidate := current.WithQuantity(productID, quantity)
	return s.apply(ctx, candidate,
		func(ctx context.Context, repo Repository) error { return repo.Save(ctx, candidate) },
		"Cart updated",
		"Failed to update cart")
}

// RemoveItem drops productID. Removing an absent product changes nothing and is not an error.
func (s *Store) RemoveItem(ctx context.Context, productID string) Result {
	s.ops.Lock()
	defer s.ops.Unlock()

	current := s.Cart()
	item, ok := current.Find(productID)
	if !ok {
		return Result{Cart: current}
	}

	candidate := current.WithoutItem(productID)
	return s.apply(ctx, candidate,
		func(ctx context.Context, repo Repository) error { return repo.Remove(ctx, productID, candidate) },
		fmt.Sprintf("Removed %s from cart", displayName(item.Product)),
		"Failed to remove item from cart")
}

// Clear empties the cart and its persisted copy.
func (s *Store) Clear(ctx context.Context) Result {
	s.ops.Lock()
	defer s.ops.Unlock()

	candidate := *models.NewCart()
	return s.apply(ctx, candidate,
		func(ctx context.Context, repo Repository) error { return repo.Clear(ctx) },
		"Cart cleared",
		"Failed to clear cart")
}

// apply persists candidate and commits it only when persisting succeeded.
func (s *Store) apply(ctx context.Context, candidate models.Cart, persist func(context.Context, Repository) error, success, failure string) Result {
	previous := s.Cart()

	s.beginSync()
	err := persist(ctx, s.repository())
	s.endSync()
	if err != nil {
		return s.fail(failure, previous, err)
	}

	s.commit(candidate)
	s.notifier.Success(success)
	return Result{Cart: s.Cart(), Message: success}
}

func (s *Store) fail(message string, previous models.Cart, err error) Result {
	s.logger.Error(message, zap.String("mode", string(s.Mode())), zap.Error(err))
	s.notifier.Failure(message)
	return Result{Cart: previous, Err: err, Message: message}
}

func (s *Store) commit(c models.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Loading = false
	s.cart = c.Clone()
}

func (s *Store) repository() Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo
}

func (s *Store) beginSync() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *Store) endSync() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func displayName(p models.ProductSnapshot) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
