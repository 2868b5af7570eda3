package gateway

import (
	"context"
	"net/http"

	"goflare.io/storefront/models"
)

const (
	categoriesPath      = "/categories"
	categoryReorderPath = "/categories/reorder"
)

type reorderRequest struct {
	Order []string `json:"order"`
}

func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := c.do(ctx, http.MethodGet, categoriesPath, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// ReorderCategories replaces the display order with ids.
func (c *Client) ReorderCategories(ctx context.Context, ids []string) error {
	return c.do(ctx, http.MethodPut, categoryReorderPath, reorderRequest{Order: ids}, nil)
}
