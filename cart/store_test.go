package cart

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"goflare.io/storefront/gateway"
	"goflare.io/storefront/internal/fakebackend"
	"goflare.io/storefront/models"
	"goflare.io/storefront/models/enum"
	"goflare.io/storefront/snapshot"
)

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) Failure(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, message)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.successes) + len(n.failures)
}

type remoteEnv struct {
	backend  *fakebackend.Backend
	client   *gateway.Client
	store    *Store
	notifier *recordingNotifier
}

func newRemoteEnv(t *testing.T) *remoteEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	backend := fakebackend.New()
	t.Cleanup(backend.Close)

	client, err := gateway.New(backend.URL, gateway.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}

	notifier := &recordingNotifier{}
	return &remoteEnv{
		backend:  backend,
		client:   client,
		store:    NewStore(NewRemoteRepository(client, logger), notifier, logger),
		notifier: notifier,
	}
}

func newGuestStore(t *testing.T) (*Store, snapshot.Store, *recordingNotifier) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	snapshots := snapshot.NewMemoryStore()
	notifier := &recordingNotifier{}
	return NewStore(NewLocalRepository(snapshots, snapshot.DefaultKey, logger), notifier, logger), snapshots, notifier
}

func snapshotQuantities(c models.Cart) map[string]int {
	out := map[string]int{}
	for _, it := range c.Items {
		out[it.Product.ID] = it.Quantity
	}
	return out
}

func TestAddItemIncrementsExisting(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()
	a := item("a", 100, 1).Product

	if res := env.store.AddItem(ctx, a, 1); !res.OK() {
		t.Fatal(res.Err)
	}
	res := env.store.AddItem(ctx, a, 2)
	if !res.OK() {
		t.Fatal(res.Err)
	}

	if diff := cmp.Diff(map[string]int{"a": 3}, snapshotQuantities(res.Cart)); diff != "" {
		t.Fatalf("visible cart mismatch (-want +got):\n%s", diff)
	}
	if res.Cart.TotalItems() != 3 || !res.Cart.TotalPrice().Equal(decimal.NewFromInt(300)) {
		t.Fatalf("unexpected totals %d / %s", res.Cart.TotalItems(), res.Cart.TotalPrice())
	}

	server, _ := env.backend.Cart()
	if diff := cmp.Diff(map[string]int{"a": 3}, snapshotQuantities(server)); diff != "" {
		t.Fatalf("server cart mismatch (-want +got):\n%s", diff)
	}
}

func TestAddItemZeroQuantityAddsOne(t *testing.T) {
	store, _, _ := newGuestStore(t)

	res := store.AddItem(context.Background(), item("a", 5, 1).Product, 0)
	if !res.OK() {
		t.Fatal(res.Err)
	}
	if res.Cart.TotalItems() != 1 {
		t.Fatalf("expected 1 item, got %d", res.Cart.TotalItems())
	}
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	store, snapshots, notifier := newGuestStore(t)
	ctx := context.Background()

	if res := store.AddItem(ctx, models.ProductSnapshot{Name: "no id"}, 1); res.OK() {
		t.Fatal("expected a validation failure for a product without id")
	}
	if res := store.AddItem(ctx, item("a", 1, 1).Product, -2); res.OK() {
		t.Fatal("expected a validation failure for a negative quantity")
	}

	if _, err := snapshots.Read(ctx, snapshot.DefaultKey); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatal("invalid input must not be persisted")
	}
	if len(notifier.failures) != 2 {
		t.Fatalf("expected 2 failure notifications, got %v", notifier.failures)
	}
}

func TestFailedPersistKeepsPreviousState(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	if res := env.store.AddItem(ctx, item("a", 10, 1).Product, 1); !res.OK() {
		t.Fatal(res.Err)
	}
	before := env.store.Cart()

	env.backend.FailOn(http.MethodPatch, "/cart/items/a", http.StatusInternalServerError, "database unavailable")
	res := env.store.AddItem(ctx, item("a", 10, 1).Product, 4)
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Message != "Failed to add item to cart" {
		t.Fatalf("unexpected message %q", res.Message)
	}

	if diff := cmp.Diff(snapshotQuantities(before), snapshotQuantities(env.store.Cart())); diff != "" {
		t.Fatalf("visible cart changed after failure (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(snapshotQuantities(before), snapshotQuantities(res.Cart)); diff != "" {
		t.Fatalf("result cart is not the previous state (-want +got):\n%s", diff)
	}
	if len(env.notifier.failures) != 1 {
		t.Fatalf("expected one failure notification, got %v", env.notifier.failures)
	}
}

func TestUpdateItemBelowOneRemoves(t *testing.T) {
	for _, q := range []int{0, -1} {
		store, _, _ := newGuestStore(t)
		ctx := context.Background()

		store.AddItem(ctx, item("a", 1, 1).Product, 2)
		store.AddItem(ctx, item("b", 1, 1).Product, 1)

		res := store.UpdateItem(ctx, "a", q)
		if !res.OK() {
			t.Fatalf("quantity %d: %v", q, res.Err)
		}
		if diff := cmp.Diff(map[string]int{"b": 1}, snapshotQuantities(res.Cart)); diff != "" {
			t.Fatalf("quantity %d: mismatch (-want +got):\n%s", q, diff)
		}
	}
}

func TestUpdateItemAbsoluteSet(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	env.store.AddItem(ctx, item("a", 20, 1).Product, 5)
	res := env.store.UpdateItem(ctx, "a", 2)
	if !res.OK() {
		t.Fatal(res.Err)
	}

	if res.Cart.TotalItems() != 2 || !res.Cart.TotalPrice().Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected totals %d / %s", res.Cart.TotalItems(), res.Cart.TotalPrice())
	}
	server, _ := env.backend.Cart()
	if diff := cmp.Diff(map[string]int{"a": 2}, snapshotQuantities(server)); diff != "" {
		t.Fatalf("server cart mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateItemNotInCart(t *testing.T) {
	store, _, _ := newGuestStore(t)

	res := store.UpdateItem(context.Background(), "ghost", 3)
	if !errors.Is(res.Err, ErrItemNotInCart) {
		t.Fatalf("expected ErrItemNotInCart, got %v", res.Err)
	}
}

func TestRemoveItemScenario(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	env.store.AddItem(ctx, item("a", 10, 1).Product, 2)
	env.store.AddItem(ctx, item("b", 10, 1).Product, 1)

	res := env.store.RemoveItem(ctx, "b")
	if !res.OK() {
		t.Fatal(res.Err)
	}
	if diff := cmp.Diff(map[string]int{"a": 2}, snapshotQuantities(res.Cart)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if res.Cart.TotalItems() != 2 {
		t.Fatalf("expected 2 items, got %d", res.Cart.TotalItems())
	}

	calls := env.backend.CallsTo()
	if calls[len(calls)-1] != "DELETE /cart/items/b" {
		t.Fatalf("expected a remote delete, got %v", calls)
	}
}

func TestRemoveAbsentItemIsNoop(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	env.store.AddItem(ctx, item("a", 10, 1).Product, 2)
	before := env.store.Cart()
	env.backend.ResetCalls()
	notified := env.notifier.count()

	res := env.store.RemoveItem(ctx, "missing")
	if !res.OK() {
		t.Fatalf("removing an absent product must not fail: %v", res.Err)
	}
	if diff := cmp.Diff(snapshotQuantities(before), snapshotQuantities(res.Cart)); diff != "" {
		t.Fatalf("cart changed (-want +got):\n%s", diff)
	}
	if !res.Cart.TotalPrice().Equal(before.TotalPrice()) {
		t.Fatal("total price changed")
	}
	if calls := env.backend.CallsTo(); len(calls) != 0 {
		t.Fatalf("expected no backend calls, got %v", calls)
	}
	if env.notifier.count() != notified {
		t.Fatal("a no-op must not notify")
	}
}

func TestClearGuestDeletesSnapshot(t *testing.T) {
	store, snapshots, _ := newGuestStore(t)
	ctx := context.Background()

	store.AddItem(ctx, item("a", 1, 1).Product, 1)
	if _, err := snapshots.Read(ctx, snapshot.DefaultKey); err != nil {
		t.Fatalf("expected a snapshot after add: %v", err)
	}

	res := store.Clear(ctx)
	if !res.OK() {
		t.Fatal(res.Err)
	}
	if !res.Cart.IsEmpty() || res.Cart.TotalItems() != 0 || !res.Cart.TotalPrice().IsZero() {
		t.Fatalf("expected an empty cart, got %+v", res.Cart)
	}
	if _, err := snapshots.Read(ctx, snapshot.DefaultKey); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected snapshot deleted, got %v", err)
	}
}

func TestClearRemote(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	env.store.AddItem(ctx, item("a", 1, 1).Product, 1)
	if res := env.store.Clear(ctx); !res.OK() {
		t.Fatal(res.Err)
	}

	server, _ := env.backend.Cart()
	if !server.IsEmpty() {
		t.Fatalf("expected server cart cleared, got %+v", server)
	}
}

func TestFetchGuestRejected(t *testing.T) {
	store, _, notifier := newGuestStore(t)

	res := store.Fetch(context.Background())
	if !errors.Is(res.Err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", res.Err)
	}
	if len(notifier.failures) != 1 {
		t.Fatalf("expected one failure notification, got %v", notifier.failures)
	}
}

func TestFetchReplacesVisibleState(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	env.store.AddItem(ctx, item("a", 1, 1).Product, 1)
	env.backend.SeedCart(item("z", 7, 1), item("y", 3, 1))

	res := env.store.Fetch(ctx)
	if !res.OK() {
		t.Fatal(res.Err)
	}
	if diff := cmp.Diff(map[string]int{"z": 1, "y": 1}, snapshotQuantities(res.Cart)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if !res.Cart.TotalPrice().Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected total 10, got %s", res.Cart.TotalPrice())
	}
}

func TestGuestLoadHydratesSnapshot(t *testing.T) {
	store, snapshots, _ := newGuestStore(t)
	ctx := context.Background()
	store.AddItem(ctx, item("a", 1, 1).Product, 4)

	logger := zaptest.NewLogger(t)
	reloaded := NewStore(NewLocalRepository(snapshots, snapshot.DefaultKey, logger), nil, logger)
	res := reloaded.Load(ctx)
	if !res.OK() {
		t.Fatal(res.Err)
	}
	if res.Cart.TotalItems() != 4 {
		t.Fatalf("expected 4 items after reload, got %d", res.Cart.TotalItems())
	}
	if reloaded.Mode() != enum.CartModeGuest {
		t.Fatalf("unexpected mode %s", reloaded.Mode())
	}
}

// blockingRepository holds Save until release is closed.
type blockingRepository struct {
	Repository
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRepository) Save(ctx context.Context, candidate models.Cart) error {
	r.entered <- struct{}{}
	<-r.release
	return r.Repository.Save(ctx, candidate)
}

func TestLoadingAndSerializedOperations(t *testing.T) {
	logger := zaptest.NewLogger(t)
	repo := &blockingRepository{
		Repository: NewLocalRepository(snapshot.NewMemoryStore(), "", logger),
		entered:    make(chan struct{}, 2),
		release:    make(chan struct{}),
	}
	store := NewStore(repo, nil, logger)
	ctx := context.Background()
	a := item("a", 1, 1).Product

	done := make(chan Result, 2)
	go func() { done <- store.AddItem(ctx, a, 1) }()
	<-repo.entered

	if !store.Loading() || !store.Cart().Loading {
		t.Fatal("expected loading while a save is in flight")
	}

	go func() { done <- store.UpdateItem(ctx, "a", 7) }()
	close(repo.release)

	<-done
	<-done

	if store.Loading() {
		t.Fatal("loading must clear once operations settle")
	}
	if got := store.Cart().TotalItems(); got != 7 {
		t.Fatalf("expected the later update to win with 7, got %d", got)
	}
}
