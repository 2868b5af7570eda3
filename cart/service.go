package cart

import (
	"context"

	"goflare.io/storefront/models"
	"goflare.io/storefront/models/enum"
)

// Service is the cart surface the storefront UI talks to.
type Service interface {
	Cart() models.Cart
	Mode() enum.CartMode
	Load(ctx context.Context) Result
	Fetch(ctx context.Context) Result
	AddItem(ctx context.Context, product models.ProductSnapshot, quantity int) Result
	UpdateItem(ctx context.Context, productID string, quantity int) Result
	RemoveItem(ctx context.Context, productID string) Result
	Clear(ctx context.Context) Result
}
