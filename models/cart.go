package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Cart 代表購物車
// TotalItems and TotalPrice are always computed from Items; they are never stored.
type Cart struct {
	Items   []CartItem
	Loading bool
}

// CartItem 代表購物車中的單個商品項目
type CartItem struct {
	Product  ProductSnapshot `json:"product"`
	Quantity int             `json:"quantity" validate:"min=1"`
}

// cartJSON is the wire and snapshot shape: {items, totalItems, totalPrice, loading}.
type cartJSON struct {
	Items      []CartItem      `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Loading    bool            `json:"loading"`
}

func NewCart() *Cart {
	return &Cart{Items: []CartItem{}}
}

func (ci CartItem) Subtotal() decimal.Decimal {
	return ci.Product.Price.Mul(decimal.NewFromInt(int64(ci.Quantity)))
}

func (c Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Find returns the item holding productID.
func (c Cart) Find(productID string) (CartItem, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return CartItem{}, false
}

// Clone returns a deep copy so candidate states never alias the visible one.
func (c Cart) Clone() Cart {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items, Loading: c.Loading}
}

// WithAdded increments the quantity of an existing product or appends a new item.
func (c Cart) WithAdded(product ProductSnapshot, quantity int) Cart {
	next := c.Clone()
	if i := next.indexOf(product.ID); i >= 0 {
		next.Items[i].Quantity += quantity
		return next
	}
	next.Items = append(next.Items, CartItem{Product: product, Quantity: quantity})
	return next
}

// WithQuantity sets an absolute quantity. A quantity below 1 removes the item.
func (c Cart) WithQuantity(productID string, quantity int) Cart {
	if quantity < 1 {
		return c.WithoutItem(productID)
	}
	next := c.Clone()
	if i := next.indexOf(productID); i >= 0 {
		next.Items[i].Quantity = quantity
	}
	return next
}

func (c Cart) WithoutItem(productID string) Cart {
	next := Cart{Items: make([]CartItem, 0, len(c.Items)), Loading: c.Loading}
	for _, item := range c.Items {
		if item.Product.ID != productID {
			next.Items = append(next.Items, item)
		}
	}
	return next
}

func (c Cart) indexOf(productID string) int {
	for i, item := range c.Items {
		if item.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c Cart) MarshalJSON() ([]byte, error) {
	items := c.Items
	if items == nil {
		items = []CartItem{}
	}
	return json.Marshal(cartJSON{
		Items:      items,
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
		Loading:    c.Loading,
	})
}

// UnmarshalJSON keeps only the items; totals reported by the sender are recomputed.
// Entries for the same product are folded into one so items stay unique by product.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var raw cartJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	folded := Cart{Items: make([]CartItem, 0, len(raw.Items)), Loading: raw.Loading}
	for _, item := range raw.Items {
		if item.Quantity < 1 {
			continue
		}
		folded = folded.WithAdded(item.Product, item.Quantity)
	}
	*c = folded
	return nil
}
