package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"goflare.io/storefront/models"
)

const (
	cartPath      = "/cart"
	cartItemsPath = "/cart/items"
)

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// GetCart returns the server-side cart. A missing cart yields an error matching ErrNoCart.
func (c *Client) GetCart(ctx context.Context) (*models.Cart, error) {
	cart := models.NewCart()
	if err := c.do(ctx, http.MethodGet, cartPath, nil, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItem creates a cart line for the product.
func (c *Client) AddItem(ctx context.Context, item models.CartItem) error {
	if item.Product.ID == "" {
		return errors.New("add item: missing product id")
	}
	return c.do(ctx, http.MethodPost, cartItemsPath, addItemRequest{
		ProductID: item.Product.ID,
		Quantity:  item.Quantity,
	}, nil)
}

// UpdateItem sets the absolute quantity of an existing cart line.
func (c *Client) UpdateItem(ctx context.Context, productID string, quantity int) error {
	return c.do(ctx, http.MethodPatch, itemPath(productID), updateItemRequest{Quantity: quantity}, nil)
}

func (c *Client) RemoveItem(ctx context.Context, productID string) error {
	return c.do(ctx, http.MethodDelete, itemPath(productID), nil, nil)
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, cartPath, nil, nil)
}

func itemPath(productID string) string {
	return cartItemsPath + "/" + url.PathEscape(productID)
}
