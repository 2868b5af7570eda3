package models

import "github.com/shopspring/decimal"

// ProductSnapshot 代表購物車內保存的商品副本
// It is copied from the catalog when the item is added and stays valid for the session.
type ProductSnapshot struct {
	ID    string          `json:"id" validate:"required"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Brand string          `json:"brand,omitempty"`
	Image string          `json:"image,omitempty"`
}
