// Package storefront keeps a shopper's cart in step with the backend across guest and
// signed-in sessions.
package storefront

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/storefront/cart"
	"goflare.io/storefront/category"
	"goflare.io/storefront/checkout"
	"goflare.io/storefront/event"
	"goflare.io/storefront/gateway"
	"goflare.io/storefront/models"
	"goflare.io/storefront/models/enum"
)

var ErrCheckoutDisabled = errors.New("checkout is not configured")

type Service interface {
	Cart() models.Cart
	Mode() enum.CartMode
	LoadCart(ctx context.Context) cart.Result
	FetchCart(ctx context.Context) cart.Result
	AddItem(ctx context.Context, product models.ProductSnapshot, quantity int) cart.Result
	UpdateItem(ctx context.Context, productID string, quantity int) cart.Result
	RemoveItem(ctx context.Context, productID string) cart.Result
	ClearCart(ctx context.Context) cart.Result

	Login(ctx context.Context, userID, token string) (*cart.MergeReport, error)
	Logout(ctx context.Context) error

	Categories() []models.Category
	LoadCategories(ctx context.Context) error
	MoveCategory(ctx context.Context, from, to int) error

	Checkout(ctx context.Context) (*stripe.CheckoutSession, error)

	SubmitEvent(ctx context.Context, event *models.SessionEvent) error
	ProcessEvent(ctx context.Context, event *models.SessionEvent) error
	Shutdown()
}

type service struct {
	gateway  *gateway.Client
	guest    cart.Repository
	remote   cart.Repository
	store    *cart.Store
	merger   *cart.Merger
	category *category.Reorderer
	checkout checkout.Service
	event    event.Repository

	eventManager *EventManager
	workerPool   *WorkerPool

	logger *zap.Logger
}

// NewService starts in guest mode. When natsConn is non-nil it subscribes to session events
// on subject right away. checkout may be nil to disable checkout.
func NewService(
	gw *gateway.Client, guest cart.Repository, categories category.Repository, checkout checkout.Service, events event.Repository,
	notifier cart.Notifier,
	natsConn *nats.Conn, subject string,
	logger *zap.Logger, mergerOpts ...cart.MergerOption) Service {
	store := cart.NewStore(guest, notifier, logger)
	s := &service{
		gateway:  gw,
		guest:    guest,
		remote:   cart.NewRemoteRepository(gw, logger),
		store:    store,
		merger:   cart.NewMerger(guest, store, logger, mergerOpts...),
		category: category.NewReorderer(categories, logger),
		checkout: checkout,
		event:    events,
		logger:   logger,
	}
	s.eventManager = NewEventManager(natsConn, subject, logger)
	s.workerPool = NewWorkerPool(1, s, logger)
	s.registerEventHandlers()

	// 訂閱事件
	if natsConn != nil {
		if err := s.eventManager.SubscribeToEvents(s.workerPool); err != nil {
			logger.Error("Failed to subscribe to events", zap.Error(err))
		}
	}

	return s
}

func (s *service) Cart() models.Cart {
	return s.store.Cart()
}

func (s *service) Mode() enum.CartMode {
	return s.store.Mode()
}

func (s *service) LoadCart(ctx context.Context) cart.Result {
	return s.store.Load(ctx)
}

func (s *service) FetchCart(ctx context.Context) cart.Result {
	return s.store.Fetch(ctx)
}

func (s *service) AddItem(ctx context.Context, product models.ProductSnapshot, quantity int) cart.Result {
	return s.store.AddItem(ctx, product, quantity)
}

func (s *service) UpdateItem(ctx context.Context, productID string, quantity int) cart.Result {
	return s.store.UpdateItem(ctx, productID, quantity)
}

func (s *service) RemoveItem(ctx context.Context, productID string) cart.Result {
	return s.store.RemoveItem(ctx, productID)
}

func (s *service) ClearCart(ctx context.Context) cart.Result {
	return s.store.Clear(ctx)
}

// Login binds the cart to the backend for userID and merges the guest cart into it. When
// the backend cart cannot be read the guest snapshot is left untouched and the merge is
// attempted again on the next login.
func (s *service) Login(ctx context.Context, userID, token string) (*cart.MergeReport, error) {
	if userID == "" {
		return nil, fmt.Errorf("login without user id")
	}

	// 1. 設定登入憑證並切換至伺服器端購物車
	if token != "" {
		s.gateway.SetToken(token)
	}
	s.store.Reset(s.remote)

	// 2. 先讀取伺服器端購物車，合併時才不會覆蓋既有數量
	if res := s.store.Fetch(ctx); !res.OK() {
		s.restoreGuest(ctx, token)
		return nil, fmt.Errorf("failed to fetch cart before merge: %w", res.Err)
	}

	// 3. 合併訪客購物車
	report, err := s.merger.OnAuthChange(ctx, true, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to merge guest cart: %w", err)
	}

	// 4. 以伺服器端結果為準
	if res := s.store.Fetch(ctx); !res.OK() {
		return report, fmt.Errorf("failed to fetch cart after merge: %w", res.Err)
	}

	if report != nil {
		s.logger.Info("Guest cart merged",
			zap.String("user_id", userID),
			zap.Int("merged", len(report.Merged)),
			zap.Int("failed", len(report.Failed)))
	}
	return report, nil
}

// restoreGuest undoes the switch to the backend cart after a login that could not start.
func (s *service) restoreGuest(ctx context.Context, token string) {
	if token != "" {
		s.gateway.ClearToken()
	}
	s.store.Reset(s.guest)
	if res := s.store.Load(ctx); !res.OK() {
		s.logger.Error("Failed to restore guest cart", zap.Error(res.Err))
	}
}

// Logout drops the session token and returns to an empty guest cart.
func (s *service) Logout(ctx context.Context) error {
	s.gateway.ClearToken()
	s.store.Reset(s.guest)
	_, err := s.merger.OnAuthChange(ctx, false, "")
	return err
}

func (s *service) Categories() []models.Category {
	return s.category.Categories()
}

func (s *service) LoadCategories(ctx context.Context) error {
	return s.category.Load(ctx)
}

func (s *service) MoveCategory(ctx context.Context, from, to int) error {
	return s.category.Move(ctx, from, to)
}

func (s *service) Checkout(ctx context.Context) (*stripe.CheckoutSession, error) {
	if s.checkout == nil {
		return nil, ErrCheckoutDisabled
	}
	return s.checkout.CreateSession(ctx, s.store.Cart())
}

// SubmitEvent queues event behind any session event already being handled.
func (s *service) SubmitEvent(ctx context.Context, event *models.SessionEvent) error {
	return s.workerPool.Submit(ctx, event)
}

func (s *service) Shutdown() {
	if err := s.eventManager.Unsubscribe(); err != nil {
		s.logger.Warn("Failed to drain session subscription", zap.Error(err))
	}
	s.workerPool.Shutdown()
}
