package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"goflare.io/storefront/gateway"
	"goflare.io/storefront/models"
	"goflare.io/storefront/models/enum"
	"goflare.io/storefront/snapshot"
)

var (
	_ Repository = (*remoteRepository)(nil)
	_ Repository = (*localRepository)(nil)
)

// Repository is where the cart lives. The Store picks one per authentication mode and
// never branches on the mode otherwise.
type Repository interface {
	Mode() enum.CartMode
	Load(ctx context.Context) (models.Cart, error)
	// Save durably records the whole candidate cart.
	Save(ctx context.Context, candidate models.Cart) error
	// Remove records that productID left the cart; candidate is the cart without it.
	Remove(ctx context.Context, productID string, candidate models.Cart) error
	Clear(ctx context.Context) error
}

// Gateway is the subset of the backend API the remote repository needs.
type Gateway interface {
	GetCart(ctx context.Context) (*models.Cart, error)
	AddItem(ctx context.Context, item models.CartItem) error
	UpdateItem(ctx context.Context, productID string, quantity int) error
	RemoveItem(ctx context.Context, productID string) error
	ClearCart(ctx context.Context) error
}

type remoteRepository struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewRemoteRepository keeps the cart on the backend. Errors from the gateway are returned
// as they are; nothing is retried.
func NewRemoteRepository(gw Gateway, logger *zap.Logger) Repository {
	return &remoteRepository{
		gateway: gw,
		logger:  logger,
	}
}

func (r *remoteRepository) Mode() enum.CartMode {
	return enum.CartModeAuthenticated
}

func (r *remoteRepository) Load(ctx context.Context) (models.Cart, error) {
	cart, err := r.gateway.GetCart(ctx)
	if errors.Is(err, gateway.ErrNoCart) {
		return *models.NewCart(), nil
	}
	if err != nil {
		r.logger.Error("Failed to get cart", zap.Error(err))
		return models.Cart{}, err
	}
	return *cart, nil
}

// Save reconciles every candidate item against the backend, which only offers per-item
// add and update calls.
func (r *remoteRepository) Save(ctx context.Context, candidate models.Cart) error {
	// 1. 確認伺服器端購物車是否存在
	_, err := r.gateway.GetCart(ctx)
	if errors.Is(err, gateway.ErrNoCart) {
		return r.create(ctx, candidate.Items)
	}
	if err != nil {
		r.logger.Error("Failed to probe cart", zap.Error(err))
		return err
	}

	// 2. 逐項更新，不存在時改為新增
	for _, item := range candidate.Items {
		if err := r.upsert(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

// create seeds a cart that does not exist yet. The first add creates the server record,
// so no update is ever sent to a missing cart.
func (r *remoteRepository) create(ctx context.Context, items []models.CartItem) error {
	for _, item := range items {
		if err := r.gateway.AddItem(ctx, item); err != nil {
			r.logger.Error("Failed to add cart item", zap.String("product_id", item.Product.ID), zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *remoteRepository) upsert(ctx context.Context, item models.CartItem) error {
	err := r.gateway.UpdateItem(ctx, item.Product.ID, item.Quantity)
	if err == nil {
		return nil
	}
	if !gateway.IsItemNotFound(err) {
		r.logger.Error("Failed to update cart item", zap.String("product_id", item.Product.ID), zap.Error(err))
		return err
	}

	if err = r.gateway.AddItem(ctx, item); err != nil {
		r.logger.Error("Failed to add cart item", zap.String("product_id", item.Product.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *remoteRepository) Remove(ctx context.Context, productID string, _ models.Cart) error {
	if err := r.gateway.RemoveItem(ctx, productID); err != nil {
		r.logger.Error("Failed to remove cart item", zap.String("product_id", productID), zap.Error(err))
		return err
	}
	return nil
}

func (r *remoteRepository) Clear(ctx context.Context) error {
	if err := r.gateway.ClearCart(ctx); err != nil {
		r.logger.Error("Failed to clear cart", zap.Error(err))
		return err
	}
	return nil
}

type localRepository struct {
	store  snapshot.Store
	key    string
	logger *zap.Logger
}

// NewLocalRepository keeps the guest cart as one serialized snapshot under key.
func NewLocalRepository(store snapshot.Store, key string, logger *zap.Logger) Repository {
	if key == "" {
		key = snapshot.DefaultKey
	}
	return &localRepository{
		store:  store,
		key:    key,
		logger: logger,
	}
}

func (r *localRepository) Mode() enum.CartMode {
	return enum.CartModeGuest
}

// Load returns an empty cart when no snapshot exists.
func (r *localRepository) Load(ctx context.Context) (models.Cart, error) {
	data, err := r.store.Read(ctx, r.key)
	if errors.Is(err, snapshot.ErrNotFound) {
		return *models.NewCart(), nil
	}
	if err != nil {
		return models.Cart{}, err
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		r.logger.Error("Failed to decode cart snapshot", zap.String("key", r.key), zap.Error(err))
		return models.Cart{}, fmt.Errorf("failed to decode cart snapshot: %w", err)
	}
	cart.Loading = false

	return cart, nil
}

// Save overwrites the snapshot with a single write.
func (r *localRepository) Save(ctx context.Context, candidate models.Cart) error {
	candidate.Loading = false
	data, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("failed to encode cart snapshot: %w", err)
	}
	return r.store.Write(ctx, r.key, data)
}

func (r *localRepository) Remove(ctx context.Context, _ string, candidate models.Cart) error {
	return r.Save(ctx, candidate)
}

func (r *localRepository) Clear(ctx context.Context) error {
	return r.store.Delete(ctx, r.key)
}
