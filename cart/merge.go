package cart

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"goflare.io/storefront/models"
	"goflare.io/storefront/models/enum"
)

// MergeFailure is a guest item that could not be added to the authenticated cart.
type MergeFailure struct {
	Item models.CartItem
	Err  error
}

// MergeReport describes one guest-to-authenticated merge.
type MergeReport struct {
	UserID          string
	Merged          []models.CartItem
	Failed          []MergeFailure
	SnapshotDeleted bool
}

func (r *MergeReport) Partial() bool {
	return r != nil && len(r.Failed) > 0
}

type MergerOption func(*Merger)

// WithRetainFailed keeps items that failed to merge in the guest snapshot instead of
// deleting it. Off by default: the snapshot is always deleted after a merge.
func WithRetainFailed(retain bool) MergerOption {
	return func(m *Merger) {
		m.retainFailed = retain
	}
}

// Merger moves the guest cart into the authenticated cart when a session logs in.
type Merger struct {
	guest Repository
	store *Store

	retainFailed bool
	logger       *zap.Logger

	mu            sync.Mutex
	authenticated bool
}

func NewMerger(guest Repository, store *Store, logger *zap.Logger, opts ...MergerOption) *Merger {
	m := &Merger{
		guest:  guest,
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnAuthChange records the session's authentication state and merges exactly once per
// transition from unauthenticated to authenticated with a user identity. It returns a nil
// report when no merge was due. A merge that fails before touching the guest cart leaves
// the transition pending, so the next authenticated call tries again.
func (m *Merger) OnAuthChange(ctx context.Context, authenticated bool, userID string) (*MergeReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !authenticated || userID == "" {
		m.authenticated = false
		return nil, nil
	}
	if m.authenticated {
		return nil, nil
	}

	report, err := m.merge(ctx, userID)
	if err != nil {
		return nil, err
	}
	m.authenticated = true
	return report, nil
}

func (m *Merger) merge(ctx context.Context, userID string) (*MergeReport, error) {
	if m.store.Mode() != enum.CartModeAuthenticated {
		return nil, ErrNotAuthenticated
	}

	// 1. 讀取訪客購物車
	guestCart, err := m.guest.Load(ctx)
	if err != nil {
		m.logger.Error("Failed to read guest cart", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to read guest cart: %w", err)
	}

	report := &MergeReport{UserID: userID}
	if guestCart.IsEmpty() {
		return report, nil
	}

	m.store.beginSync()
	defer m.store.endSync()

	// 2. 逐項合併，失敗不中斷
	var leftover models.Cart
	for _, item := range guestCart.Items {
		res := m.store.AddItem(ctx, item.Product, item.Quantity)
		if !res.OK() {
			m.logger.Error("Failed to merge guest cart item",
				zap.String("user_id", userID),
				zap.String("product_id", item.Product.ID),
				zap.Error(res.Err))
			report.Failed = append(report.Failed, MergeFailure{Item: item, Err: res.Err})
			leftover = leftover.WithAdded(item.Product, item.Quantity)
			continue
		}
		report.Merged = append(report.Merged, item)
	}

	// 3. 清除訪客快照
	if m.retainFailed && report.Partial() {
		if err := m.guest.Save(ctx, leftover); err != nil {
			m.logger.Error("Failed to retain unmerged guest items", zap.String("user_id", userID), zap.Error(err))
		}
		return report, nil
	}

	if err := m.guest.Clear(ctx); err != nil {
		m.logger.Error("Failed to delete guest cart", zap.String("user_id", userID), zap.Error(err))
		return report, nil
	}
	report.SnapshotDeleted = true

	if report.Partial() {
		m.logger.Warn("Guest cart partially merged",
			zap.String("user_id", userID),
			zap.Int("merged", len(report.Merged)),
			zap.Int("failed", len(report.Failed)))
	}

	return report, nil
}
