package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"goflare.io/storefront/gateway"
	"goflare.io/storefront/models"
	"goflare.io/storefront/models/enum"
	"goflare.io/storefront/snapshot"
)

// recordingGateway records calls and answers from a scripted table.
type recordingGateway struct {
	hasCart  bool
	lines    map[string]int
	calls    []string
	failures map[string]error
}

func newRecordingGateway(hasCart bool, lines map[string]int) *recordingGateway {
	if lines == nil {
		lines = map[string]int{}
	}
	return &recordingGateway{hasCart: hasCart, lines: lines, failures: map[string]error{}}
}

func (g *recordingGateway) record(call string) error {
	g.calls = append(g.calls, call)
	return g.failures[call]
}

func (g *recordingGateway) GetCart(_ context.Context) (*models.Cart, error) {
	if err := g.record("GET /cart"); err != nil {
		return nil, err
	}
	if !g.hasCart {
		return nil, &gateway.APIError{StatusCode: http.StatusNotFound, Method: http.MethodGet, Path: "/cart"}
	}
	c := models.NewCart()
	for id, q := range g.lines {
		*c = c.WithAdded(models.ProductSnapshot{ID: id}, q)
	}
	return c, nil
}

func (g *recordingGateway) AddItem(_ context.Context, item models.CartItem) error {
	if err := g.record("POST " + item.Product.ID); err != nil {
		return err
	}
	g.hasCart = true
	g.lines[item.Product.ID] += item.Quantity
	return nil
}

func (g *recordingGateway) UpdateItem(_ context.Context, productID string, quantity int) error {
	if err := g.record("PATCH " + productID); err != nil {
		return err
	}
	if _, ok := g.lines[productID]; !ok || !g.hasCart {
		return &gateway.APIError{StatusCode: http.StatusNotFound, Message: gateway.MessageItemNotFound}
	}
	g.lines[productID] = quantity
	return nil
}

func (g *recordingGateway) RemoveItem(_ context.Context, productID string) error {
	if err := g.record("DELETE " + productID); err != nil {
		return err
	}
	delete(g.lines, productID)
	return nil
}

func (g *recordingGateway) ClearCart(_ context.Context) error {
	if err := g.record("DELETE /cart"); err != nil {
		return err
	}
	g.lines = map[string]int{}
	return nil
}

func cartOf(items ...models.CartItem) models.Cart {
	c := *models.NewCart()
	for _, it := range items {
		c = c.WithAdded(it.Product, it.Quantity)
	}
	return c
}

func item(id string, price int64, qty int) models.CartItem {
	return models.CartItem{
		Product:  models.ProductSnapshot{ID: id, Name: id, Price: decimal.NewFromInt(price)},
		Quantity: qty,
	}
}

func TestRemoteSaveFreshCartNeverUpdates(t *testing.T) {
	gw := newRecordingGateway(false, nil)
	repo := NewRemoteRepository(gw, zaptest.NewLogger(t))

	err := repo.Save(context.Background(), cartOf(item("a", 1, 1), item("b", 1, 2), item("c", 1, 3)))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"GET /cart", "POST a", "POST b", "POST c"}
	if diff := cmp.Diff(want, gw.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"a": 1, "b": 2, "c": 3}, gw.lines); diff != "" {
		t.Fatalf("server lines mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoteSaveFallsBackToAddOnItemNotFound(t *testing.T) {
	gw := newRecordingGateway(true, map[string]int{"a": 1})
	repo := NewRemoteRepository(gw, zaptest.NewLogger(t))

	err := repo.Save(context.Background(), cartOf(item("a", 1, 3), item("x", 1, 1)))
	if err != nil {
		t.Fatalf("item not found must not surface: %v", err)
	}

	want := []string{"GET /cart", "PATCH a", "PATCH x", "POST x"}
	if diff := cmp.Diff(want, gw.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"a": 3, "x": 1}, gw.lines); diff != "" {
		t.Fatalf("server lines mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoteSavePropagatesOtherErrors(t *testing.T) {
	gw := newRecordingGateway(true, map[string]int{"a": 1})
	boom := &gateway.APIError{StatusCode: http.StatusBadGateway, Message: "upstream down"}
	gw.failures["PATCH a"] = boom
	repo := NewRemoteRepository(gw, zaptest.NewLogger(t))

	err := repo.Save(context.Background(), cartOf(item("a", 1, 2), item("b", 1, 1)))
	if !errors.Is(err, boom) {
		t.Fatalf("expected the gateway error unmodified, got %v", err)
	}

	want := []string{"GET /cart", "PATCH a"}
	if diff := cmp.Diff(want, gw.calls); diff != "" {
		t.Fatalf("no retry or further calls expected (-want +got):\n%s", diff)
	}
}

func TestRemoteSaveProbeFailure(t *testing.T) {
	gw := newRecordingGateway(true, nil)
	probeErr := fmt.Errorf("dial tcp: connection refused")
	gw.failures["GET /cart"] = probeErr
	repo := NewRemoteRepository(gw, zaptest.NewLogger(t))

	if err := repo.Save(context.Background(), cartOf(item("a", 1, 1))); !errors.Is(err, probeErr) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if len(gw.calls) != 1 {
		t.Fatalf("expected only the probe, got %v", gw.calls)
	}
}

func TestRemoteLoadWithoutCart(t *testing.T) {
	repo := NewRemoteRepository(newRecordingGateway(false, nil), zaptest.NewLogger(t))

	c, err := repo.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", c)
	}
	if repo.Mode() != enum.CartModeAuthenticated {
		t.Fatalf("unexpected mode %s", repo.Mode())
	}
}

func TestLocalRepositoryRoundTrip(t *testing.T) {
	store := snapshot.NewMemoryStore()
	repo := NewLocalRepository(store, "", zaptest.NewLogger(t))
	ctx := context.Background()

	empty, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("absent snapshot must load as empty cart: %v", err)
	}
	if !empty.IsEmpty() {
		t.Fatal("expected empty guest cart")
	}

	want := cartOf(item("a", 100, 2), item("b", 40, 1))
	want.Loading = true
	if err := repo.Save(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Loading {
		t.Fatal("loading flag must not survive a reload")
	}
	if got.TotalItems() != 3 || !got.TotalPrice().Equal(decimal.NewFromInt(240)) {
		t.Fatalf("unexpected totals %d / %s", got.TotalItems(), got.TotalPrice())
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Read(ctx, snapshot.DefaultKey); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected snapshot deleted, got %v", err)
	}
}

func TestLocalRepositoryCorruptSnapshot(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()
	if err := store.Write(ctx, snapshot.DefaultKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	if _, err := NewLocalRepository(store, "", zaptest.NewLogger(t)).Load(ctx); err == nil {
		t.Fatal("expected a decode error")
	}
}
