// Package fakebackend is an in-memory stand-in for the storefront backend used by tests.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"goflare.io/storefront/models"
)

// Call is one request received by the backend.
type Call struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

type failure struct {
	method  string
	path    string
	status  int
	message string
}

// Backend implements the cart and category endpoints.
type Backend struct {
	*httptest.Server

	mu         sync.Mutex
	hasCart    bool
	cart       models.Cart
	catalog    map[string]models.ProductSnapshot
	categories []models.Category
	calls      []Call
	failures   []failure
}

func New() *Backend {
	b := &Backend{
		cart:    models.Cart{Items: []models.CartItem{}},
		catalog: make(map[string]models.ProductSnapshot),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

// AddProduct registers a product so POST /cart/items can resolve it.
func (b *Backend) AddProduct(p models.ProductSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalog[p.ID] = p
}

// SeedCart makes the server-side cart exist with items.
func (b *Backend) SeedCart(items ...models.CartItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasCart = true
	b.cart = models.Cart{Items: []models.CartItem{}}
	for _, it := range items {
		b.catalog[it.Product.ID] = it.Product
		b.cart = b.cart.WithAdded(it.Product, it.Quantity)
	}
}

func (b *Backend) SetCategories(categories ...models.Category) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.categories = append([]models.Category(nil), categories...)
}

// FailOn makes every request matching method and path answer with status and message.
func (b *Backend) FailOn(method, path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, failure{method: method, path: path, status: status, message: message})
}

// Recover drops every failure registered with FailOn.
func (b *Backend) Recover() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = nil
}

func (b *Backend) Cart() (models.Cart, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cart.Clone(), b.hasCart
}

func (b *Backend) Categories() []models.Category {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Category(nil), b.categories...)
}

func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsTo returns "METHOD path" strings in arrival order.
func (b *Backend) CallsTo() []string {
	calls := b.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Method+" "+c.Path)
	}
	return out
}

func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, Call{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-Id"),
	})

	for _, f := range b.failures {
		if f.method == r.Method && f.path == r.URL.Path {
			respondError(w, f.status, f.message)
			return
		}
	}

	switch {
	case r.URL.Path == "/cart" && r.Method == http.MethodGet:
		if !b.hasCart {
			respondError(w, http.StatusNotFound, "Cart not found")
			return
		}
		respond(w, http.StatusOK, b.cart)

	case r.URL.Path == "/cart" && r.Method == http.MethodDelete:
		b.cart = models.Cart{Items: []models.CartItem{}}
		w.WriteHeader(http.StatusNoContent)

	case r.URL.Path == "/cart/items" && r.Method == http.MethodPost:
		var req struct {
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" || req.Quantity < 1 {
			respondError(w, http.StatusBadRequest, "invalid item")
			return
		}
		product, ok := b.catalog[req.ProductID]
		if !ok {
			product = models.ProductSnapshot{ID: req.ProductID}
		}
		b.hasCart = true
		b.cart = b.cart.WithAdded(product, req.Quantity)
		respond(w, http.StatusCreated, b.cart)

	case strings.HasPrefix(r.URL.Path, "/cart/items/"):
		productID := strings.TrimPrefix(r.URL.Path, "/cart/items/")
		b.serveItem(w, r, productID)

	case r.URL.Path == "/categories" && r.Method == http.MethodGet:
		respond(w, http.StatusOK, b.categories)

	case r.URL.Path == "/categories/reorder" && r.Method == http.MethodPut:
		var req struct {
			Order []string `json:"order"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid order")
			return
		}
		byID := make(map[string]models.Category, len(b.categories))
		for _, c := range b.categories {
			byID[c.ID] = c
		}
		reordered := make([]models.Category, 0, len(req.Order))
		for i, id := range req.Order {
			c, ok := byID[id]
			if !ok {
				respondError(w, http.StatusBadRequest, "unknown category "+id)
				return
			}
			c.Position = i
			reordered = append(reordered, c)
		}
		b.categories = reordered
		w.WriteHeader(http.StatusNoContent)

	default:
		respondError(w, http.StatusNotFound, "route not found")
	}
}

func (b *Backend) serveItem(w http.ResponseWriter, r *http.Request, productID string) {
	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid quantity")
			return
		}
		if _, ok := b.cart.Find(productID); !b.hasCart || !ok {
			respondError(w, http.StatusNotFound, "Item not found in cart")
			return
		}
		b.cart = b.cart.WithQuantity(productID, req.Quantity)
		respond(w, http.StatusOK, b.cart)

	case http.MethodDelete:
		b.cart = b.cart.WithoutItem(productID)
		w.WriteHeader(http.StatusNoContent)

	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"message": message})
}
